package game

import (
	"context"
	"log"
	"time"
)

// Envelope carries one intent into the engine loop. Reply, when non-nil,
// receives the outcome exactly once.
type Envelope struct {
	Intent Intent
	Reply  chan<- Applied
}

// Applied is the outcome of an intent plus the tick and digest right after
// it committed, ready to piggyback on the forwarded action.
type Applied struct {
	Result Result
	Tick   uint64
	Digest string
}

// Engine owns a State on a single goroutine. Everything else talks to it
// through the inbox or Do; the State itself is never touched from outside
// the loop.
type Engine struct {
	st     *State
	logger *log.Logger

	inbox chan Envelope
	calls chan func(*State)
	stop  chan struct{}
}

func NewEngine(st *State, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		st:     st,
		logger: logger,
		inbox:  make(chan Envelope, 256),
		calls:  make(chan func(*State), 64),
		stop:   make(chan struct{}),
	}
}

func (e *Engine) Inbox() chan<- Envelope { return e.inbox }

// Do runs fn on the engine goroutine and waits for it. It is the only
// sanctioned way to read or click into the state from outside the loop.
func (e *Engine) Do(fn func(*State)) {
	done := make(chan struct{})
	e.calls <- func(st *State) {
		fn(st)
		close(done)
	}
	<-done
}

// Apply pushes one intent through the loop synchronously.
func (e *Engine) Apply(in Intent) Applied {
	reply := make(chan Applied, 1)
	e.inbox <- Envelope{Intent: in, Reply: reply}
	return <-reply
}

// Replace swaps in a restored state on the loop goroutine. Resync from a
// snapshot uses it so in-flight envelopes never see a half-swapped state.
func (e *Engine) Replace(st *State) {
	done := make(chan struct{})
	e.calls <- func(*State) {
		e.st = st
		close(done)
	}
	<-done
}

// Stop ends Run. Safe to call once.
func (e *Engine) Stop() { close(e.stop) }

// Run drives the loop: intents apply in arrival order, the sim clock
// advances on the ticker. Pending intents always apply before the tick
// that follows them.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.st.Tuning().TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case fn := <-e.calls:
			fn(e.st)
		case env := <-e.inbox:
			e.applyEnvelope(env)
		case <-ticker.C:
			e.st.step()
		}
	}
}

func (e *Engine) applyEnvelope(env Envelope) {
	res := e.st.Apply(env.Intent)
	if env.Reply != nil {
		env.Reply <- Applied{Result: res, Tick: e.st.Tick(), Digest: e.st.Digest()}
	}
}

// StepOnce applies the given envelopes then advances one tick, without the
// loop goroutine. Replays and tests drive the engine this way.
func (e *Engine) StepOnce(envs []Envelope) (tick uint64, digest string) {
	for _, env := range envs {
		e.applyEnvelope(env)
	}
	e.st.step()
	return e.st.Tick(), e.st.Digest()
}
