package scroll

// State is the continuation readiness of one page.
type State int

const (
	// StateEmpty means neither a hit nor a token has been observed.
	StateEmpty State = iota
	// StateItemOnly means at least one hit was observed but no token yet.
	StateItemOnly
	// StateTokenOnly means a token was observed but no hit yet.
	StateTokenOnly
	// StateReady means both were observed and the next page may be requested.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateItemOnly:
		return "item_only"
	case StateTokenOnly:
		return "token_only"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Signal is an input to the readiness state machine.
type Signal int

const (
	SignalItem Signal = iota
	SignalToken
	SignalReset
)

// Transition returns the state reached from s on sig.
//
//	Empty     --item-->  ItemOnly     Empty    --token--> TokenOnly
//	ItemOnly  --item-->  ItemOnly     ItemOnly --token--> Ready
//	TokenOnly --token--> TokenOnly    TokenOnly --item--> Ready
//	any       --reset--> Empty
func Transition(s State, sig Signal) State {
	switch sig {
	case SignalReset:
		return StateEmpty
	case SignalItem:
		switch s {
		case StateEmpty, StateItemOnly:
			return StateItemOnly
		case StateTokenOnly:
			return StateReady
		}
	case SignalToken:
		switch s {
		case StateEmpty, StateTokenOnly:
			return StateTokenOnly
		case StateItemOnly:
			return StateReady
		}
	}
	return s
}

// Tracker decides when a page has produced enough to request the next one.
// It calls fire with the token the first moment both a hit and a token have
// been observed, in either order, and then resets to StateEmpty. A page
// without hits never fires. A Tracker is not safe for concurrent use.
type Tracker struct {
	state State
	token string
	fire  func(token string)
}

// NewTracker returns an empty tracker that calls fire when ready.
func NewTracker(fire func(token string)) *Tracker {
	return &Tracker{fire: fire}
}

// OnItem records that a hit was observed.
func (t *Tracker) OnItem() {
	t.apply(SignalItem)
}

// OnToken records a continuation token. A later token replaces an earlier
// one that has not fired yet.
func (t *Tracker) OnToken(token string) {
	t.token = token
	t.apply(SignalToken)
}

// State returns the current readiness.
func (t *Tracker) State() State {
	return t.state
}

func (t *Tracker) apply(sig Signal) {
	t.state = Transition(t.state, sig)
	if t.state != StateReady {
		return
	}

	token := t.token
	t.state = Transition(t.state, SignalReset)
	t.token = ""

	if t.fire != nil {
		t.fire(token)
	}
}
