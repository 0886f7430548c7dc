package network

// State is the state of a connection Manager.
type State uint8

// Manager states.
const (
	Idle State = iota
	Connecting
	Connected
	Disconnecting
	Failed
)

// String implements the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
