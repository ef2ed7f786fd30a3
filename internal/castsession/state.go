package castsession

// State is the lifecycle of the cast session owned by a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	Launching
	Active
	Ending
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Launching:
		return "Launching"
	case Active:
		return "Active"
	case Ending:
		return "Ending"
	default:
		return "Unknown"
	}
}
