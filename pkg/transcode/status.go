package transcode

// Status is the outcome of a SendInput or ReceiveOutput call. Transient
// conditions are statuses, never errors.
type Status int

const (
	StatusAccepted Status = iota
	// StatusBusy means the input was not consumed: drain outputs and resend
	// the same unit.
	StatusBusy
	StatusEnded
	StatusProduced
	StatusNeedsMoreInput
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusBusy:
		return "busy"
	case StatusEnded:
		return "ended"
	case StatusProduced:
		return "produced"
	case StatusNeedsMoreInput:
		return "needs-more-input"
	default:
		return "error"
	}
}

type State int

const (
	StateClosed State = iota
	StateOpen
	StateEndSignaled
	StateDrained
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateEndSignaled:
		return "end-signaled"
	case StateDrained:
		return "drained"
	default:
		return "released"
	}
}
