package stream

import "fmt"

type StateKind int

const (
	Disconnected StateKind = iota
	Connecting
	Connected
	Failed
)

func (k StateKind) String() string {
	switch k {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// State is the health of the stream connection. Message is only set for Failed.
type State struct {
	Kind    StateKind `json:"kind"`
	Message string    `json:"message,omitempty"`
}

func ErrorState(msg string) State { return State{Kind: Failed, Message: msg} }

func (s State) IsError() bool { return s.Kind == Failed }

func (s State) String() string {
	if s.Kind == Failed {
		return fmt.Sprintf("error(%s)", s.Message)
	}
	return s.Kind.String()
}

func (k StateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
