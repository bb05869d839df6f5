package session

type State int

const (
	Uninitialized State = iota
	Ready
	ChallengePending
	LoginRequired
	AwaitingOTP
	RateLimited
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case ChallengePending:
		return "challenge_pending"
	case LoginRequired:
		return "login_required"
	case AwaitingOTP:
		return "awaiting_otp"
	case RateLimited:
		return "rate_limited"
	case Failed:
		return "failed"
	}
	return "unknown"
}
