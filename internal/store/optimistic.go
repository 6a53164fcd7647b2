package store

import (
	"context"
	"sync"
)

// mutationKey names one field of one entity.
type mutationKey struct {
	id    string
	field string
}

// keyState tracks the mutations of one key. confirmed is the last value the
// gateway is known to hold; it is seeded from local state whenever nothing is
// in flight, because then local and remote agree.
type keyState struct {
	gen          uint64
	inflight     int
	confirmed    any
	confirmedGen uint64
}

// generations hands out a counter per key. Only the holder of the latest
// generation for a key may roll that key back, and a rollback always lands on
// the last confirmed value, never on another mutation's unconfirmed one.
type generations struct {
	mu   sync.Mutex
	keys map[mutationKey]*keyState
}

func newGenerations() *generations {
	return &generations{keys: make(map[mutationKey]*keyState)}
}

func (g *generations) state(k mutationKey) *keyState {
	st, ok := g.keys[k]
	if !ok {
		st = &keyState{}
		g.keys[k] = st
	}
	return st
}

// optimistic is one local mutation mirrored by one remote call. apply runs
// under the generation lock, so it sees every earlier mutation of the key; it
// writes next locally and returns the value it replaced. set writes a value
// back and also runs under the lock.
type optimistic[T any] struct {
	key    mutationKey
	apply  func() (prev, next T, err error)
	set    func(T)
	remote func(ctx context.Context, next T) error
}

// run applies the mutation, calls the gateway, then settles. A failure of the
// newest mutation restores the confirmed value; a superseded failure leaves
// the newer local state alone. Once the last in-flight call for the key
// settles, local state is brought back to the confirmed value, which covers a
// newer failure that was followed by an older success.
func (o optimistic[T]) run(ctx context.Context, g *generations) (rolledBack bool, err error) {
	g.mu.Lock()
	prev, next, err := o.apply()
	if err != nil {
		g.mu.Unlock()
		return false, err
	}
	st := g.state(o.key)
	if st.inflight == 0 {
		st.confirmed, st.confirmedGen = prev, st.gen
	}
	st.gen++
	st.inflight++
	gen := st.gen
	g.mu.Unlock()

	remoteErr := o.remote(ctx, next)

	g.mu.Lock()
	defer g.mu.Unlock()
	st.inflight--
	if remoteErr == nil && gen >= st.confirmedGen {
		st.confirmed, st.confirmedGen = next, gen
	}
	confirmed := st.confirmed.(T)
	if remoteErr != nil && gen == st.gen {
		o.set(confirmed)
		rolledBack = true
	} else if st.inflight == 0 {
		o.set(confirmed)
	}
	if st.inflight == 0 {
		delete(g.keys, o.key)
	}
	return rolledBack, remoteErr
}
