package client

// State is a client state from RFC 2131 §4.4, figure 5.
type State int

const (
	StateInit State = iota
	StateInitReboot
	StateRebooting
	StateSelecting
	StateRequesting
	StateBound
	StateRenewing
	StateRebinding
)

// String returns the state name used in logs, metrics and hook events.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateInitReboot:
		return "INIT-REBOOT"
	case StateRebooting:
		return "REBOOTING"
	case StateSelecting:
		return "SELECTING"
	case StateRequesting:
		return "REQUESTING"
	case StateBound:
		return "BOUND"
	case StateRenewing:
		return "RENEWING"
	case StateRebinding:
		return "REBINDING"
	default:
		return "UNKNOWN"
	}
}

// hasLease reports whether the client holds a committed, configured lease in s.
func (s State) hasLease() bool {
	return s == StateBound || s == StateRenewing || s == StateRebinding
}
