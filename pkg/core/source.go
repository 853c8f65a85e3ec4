package core

// SourceStatus is the lifecycle state of a log source.
type SourceStatus string

const (
	StatusRunning          SourceStatus = "Running"
	StatusPending          SourceStatus = "Pending"
	StatusCrashLoopBackOff SourceStatus = "CrashLoopBackOff"
	StatusTerminated       SourceStatus = "Terminated"
	StatusUnknown          SourceStatus = "Unknown"
)

func (s SourceStatus) String() string { return string(s) }

// CanReceiveLogs reports whether a source in this state is worth streaming.
// Crash-looping sources still produce logs between restarts.
func (s SourceStatus) CanReceiveLogs() bool {
	return s == StatusRunning || s == StatusCrashLoopBackOff
}

// Source is a discovered producer of log lines: a pod, a unit, or a file.
type Source struct {
	ID        string       `json:"id"`
	Namespace string       `json:"namespace"`
	Status    SourceStatus `json:"status"`
	Container string       `json:"container,omitempty"`
}

// CanReceiveLogs reports whether logs should be requested from s.
func (s Source) CanReceiveLogs() bool { return s.Status.CanReceiveLogs() }

// ShortName returns the first 8 bytes of the source ID.
func (s Source) ShortName() string {
	if len(s.ID) <= 8 {
		return s.ID
	}
	return s.ID[:8]
}

// Eligible returns the sources that can receive logs, preserving order.
func Eligible(sources []Source) []Source {
	var out []Source
	for _, s := range sources {
		if s.CanReceiveLogs() {
			out = append(out, s)
		}
	}
	return out
}
