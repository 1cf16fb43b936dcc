package model

// OutcomeKind tags a LoginOutcome.
type OutcomeKind int

const (
	OutcomeToken OutcomeKind = iota + 1
	OutcomeCancelled
	OutcomeInterrupted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeToken:
		return "token"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// LoginOutcome is the single result of a login session.
type LoginOutcome struct {
	Kind  OutcomeKind
	Token string
}

// TokenOutcome builds a successful outcome.
func TokenOutcome(token string) LoginOutcome {
	return LoginOutcome{Kind: OutcomeToken, Token: token}
}

// CancelledOutcome is produced when the user closes the window.
func CancelledOutcome() LoginOutcome {
	return LoginOutcome{Kind: OutcomeCancelled}
}

// InterruptedOutcome is produced when the session is torn down without a result.
func InterruptedOutcome() LoginOutcome {
	return LoginOutcome{Kind: OutcomeInterrupted}
}

// Err maps the outcome to the login contract's error values.
func (o LoginOutcome) Err() error {
	switch o.Kind {
	case OutcomeToken:
		return nil
	case OutcomeCancelled:
		return ErrLoginCancelled
	default:
		return ErrLoginInterrupted
	}
}

// LoginState is the coordinator's position in the login state machine.
type LoginState int

const (
	LoginIdle LoginState = iota
	LoginWindowOpening
	LoginAwaitingTargetHost
	LoginResolved
)

func (s LoginState) String() string {
	switch s {
	case LoginIdle:
		return "idle"
	case LoginWindowOpening:
		return "window-opening"
	case LoginAwaitingTargetHost:
		return "awaiting-target-host"
	case LoginResolved:
		return "resolved"
	default:
		return "unknown"
	}
}
