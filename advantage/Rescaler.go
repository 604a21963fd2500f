package advantage

// Rescaler denotes the quantity used to rescale the policy gradient:
// the advantage of each action. The available rescalers differ in how
// that advantage is estimated.
type Rescaler int

const (
	// AValue estimates the advantage as the bootstrapped discounted
	// return minus the predicted state value
	AValue Rescaler = iota

	// CustomActorCritic is AValue with state values supplied by an
	// external critic instead of the network's value head
	CustomActorCritic

	// GAE estimates the advantage with generalized advantage
	// estimation
	GAE
)

func (r Rescaler) String() string {
	switch r {
	case AValue:
		return "AValue"
	case CustomActorCritic:
		return "CustomActorCritic"
	case GAE:
		return "GAE"
	default:
		return "Unknown"
	}
}

// Known returns whether r is one of the available rescalers. An
// unknown rescaler is not an error: callers warn and proceed with
// degenerate zero advantages.
func (r Rescaler) Known() bool {
	switch r {
	case AValue, CustomActorCritic, GAE:
		return true
	default:
		return false
	}
}
