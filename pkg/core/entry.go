package core

import "strings"

// LogEntry is a single normalized log line attributed to the source that
// produced it.
type LogEntry struct {
	SourceID string `json:"source_id"`
	RawLine  string `json:"raw_line"`
	Message  string `json:"message"`
}

var lineNoise = strings.NewReplacer("\r", "", "\x00", "")

// ParseEntry builds a LogEntry from one raw line. Carriage returns and NUL
// bytes are stripped. Message drops the leading timestamp token, i.e.
// everything up to and including the first space.
func ParseEntry(sourceID, raw string) LogEntry {
	clean := lineNoise.Replace(raw)
	msg := clean
	if i := strings.IndexByte(clean, ' '); i >= 0 {
		msg = clean[i+1:]
	}
	return LogEntry{SourceID: sourceID, RawLine: clean, Message: msg}
}
