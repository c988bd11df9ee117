package scroll

import (
	"testing"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from State
		sig  Signal
		want State
	}{
		{StateEmpty, SignalItem, StateItemOnly},
		{StateEmpty, SignalToken, StateTokenOnly},
		{StateEmpty, SignalReset, StateEmpty},
		{StateItemOnly, SignalItem, StateItemOnly},
		{StateItemOnly, SignalToken, StateReady},
		{StateItemOnly, SignalReset, StateEmpty},
		{StateTokenOnly, SignalItem, StateReady},
		{StateTokenOnly, SignalToken, StateTokenOnly},
		{StateTokenOnly, SignalReset, StateEmpty},
		{StateReady, SignalItem, StateReady},
		{StateReady, SignalToken, StateReady},
		{StateReady, SignalReset, StateEmpty},
	}

	for _, tt := range tests {
		got := Transition(tt.from, tt.sig)
		if got != tt.want {
			t.Errorf("Transition(%v, %d) = %v, want %v", tt.from, tt.sig, got, tt.want)
		}
	}
}

// Every sequence of signals reaches Ready exactly when it contains at least
// one item and one token.
func TestTransitionReadyIffBothSignals(t *testing.T) {
	signals := []Signal{SignalItem, SignalToken}

	for length := 1; length <= 6; length++ {
		for mask := 0; mask < 1<<length; mask++ {
			state := StateEmpty
			var items, tokens int
			for i := 0; i < length; i++ {
				sig := signals[(mask>>i)&1]
				if sig == SignalItem {
					items++
				} else {
					tokens++
				}
				state = Transition(state, sig)
			}

			ready := state == StateReady
			want := items > 0 && tokens > 0
			if ready != want {
				t.Errorf("length %d mask %b: ready = %v, want %v", length, mask, ready, want)
			}
		}
	}
}

func TestTrackerFiresOnSecondSignal(t *testing.T) {
	tests := []struct {
		name  string
		steps func(tr *Tracker)
		fired []string
		state State
	}{
		{
			name: "item then token",
			steps: func(tr *Tracker) {
				tr.OnItem()
				tr.OnToken("t1")
			},
			fired: []string{"t1"},
			state: StateEmpty,
		},
		{
			name: "token then item",
			steps: func(tr *Tracker) {
				tr.OnToken("t1")
				tr.OnItem()
			},
			fired: []string{"t1"},
			state: StateEmpty,
		},
		{
			name: "many items fire once",
			steps: func(tr *Tracker) {
				tr.OnToken("t1")
				tr.OnItem()
				tr.OnItem()
				tr.OnItem()
			},
			fired: []string{"t1"},
			state: StateItemOnly,
		},
		{
			name: "token only never fires",
			steps: func(tr *Tracker) {
				tr.OnToken("t1")
			},
			state: StateTokenOnly,
		},
		{
			name: "items only never fire",
			steps: func(tr *Tracker) {
				tr.OnItem()
				tr.OnItem()
			},
			state: StateItemOnly,
		},
		{
			name: "later token replaces pending token",
			steps: func(tr *Tracker) {
				tr.OnToken("old")
				tr.OnToken("new")
				tr.OnItem()
			},
			fired: []string{"new"},
			state: StateEmpty,
		},
		{
			name: "reuse across pages",
			steps: func(tr *Tracker) {
				tr.OnItem()
				tr.OnToken("p1")
				tr.OnToken("p2")
				tr.OnItem()
			},
			fired: []string{"p1", "p2"},
			state: StateEmpty,
		},
		{
			name:  "nothing observed",
			steps: func(tr *Tracker) {},
			state: StateEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fired []string
			tr := NewTracker(func(token string) {
				fired = append(fired, token)
			})

			tt.steps(tr)

			if len(fired) != len(tt.fired) {
				t.Fatalf("fired = %v, want %v", fired, tt.fired)
			}
			for i := range fired {
				if fired[i] != tt.fired[i] {
					t.Errorf("fired[%d] = %q, want %q", i, fired[i], tt.fired[i])
				}
			}
			if tr.State() != tt.state {
				t.Errorf("State() = %v, want %v", tr.State(), tt.state)
			}
		})
	}
}

func TestTrackerResetsBeforeCallback(t *testing.T) {
	var tr *Tracker
	var during State
	tr = NewTracker(func(string) {
		during = tr.State()
	})

	tr.OnItem()
	tr.OnToken("t")

	if during != StateEmpty {
		t.Errorf("State() during callback = %v, want %v", during, StateEmpty)
	}
}

func TestTrackerWithoutCallback(t *testing.T) {
	tr := NewTracker(nil)
	tr.OnItem()
	tr.OnToken("t")

	if tr.State() != StateEmpty {
		t.Errorf("State() = %v, want %v", tr.State(), StateEmpty)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateEmpty:     "empty",
		StateItemOnly:  "item_only",
		StateTokenOnly: "token_only",
		StateReady:     "ready",
		State(42):      "unknown",
	}

	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
