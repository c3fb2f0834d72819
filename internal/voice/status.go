package voice

import "fmt"

// Status is the user-visible session state.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusActive
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusActive:
		return "active"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnStatus     func(Status)
	OnTranscript func(Snapshot)
}

func (o ObserverFuncs) StatusChanged(s Status) {
	if o.OnStatus != nil {
		o.OnStatus(s)
	}
}

func (o ObserverFuncs) TranscriptChanged(s Snapshot) {
	if o.OnTranscript != nil {
		o.OnTranscript(s)
	}
}
