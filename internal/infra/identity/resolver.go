package identity

import "fmt"

// Resolver looks up the identity that a user URN refers to, so that
// CheckKey can confirm a certifying user's signing key belongs to that
// user's own current key set. Grounded on entity.rs's Resolver<T> trait.
type Resolver[T any] interface {
	Resolve(urn string) (*Entity[T], error)
}

// visitedResolver wraps a Resolver so that resolution is idempotent and
// cached per-verification, and so that a certifier chain referencing itself
// recurses no more than once: a URN currently being resolved (in-flight) that
// comes back around is a true cycle and fails, but a URN already resolved
// earlier in the same pass — e.g. two different signatures both attributed
// to the same certifying user — is served from cache instead of re-entering
// inner or erroring.
type visitedResolver[T any] struct {
	inner    Resolver[T]
	inFlight map[string]struct{}
	cache    map[string]*Entity[T]
}

// GuardCycles wraps inner with a fresh cache and in-flight set, scoped to one
// logical validation pass.
func GuardCycles[T any](inner Resolver[T]) Resolver[T] {
	return &visitedResolver[T]{
		inner:    inner,
		inFlight: make(map[string]struct{}),
		cache:    make(map[string]*Entity[T]),
	}
}

func (r *visitedResolver[T]) Resolve(urn string) (*Entity[T], error) {
	if e, ok := r.cache[urn]; ok {
		return e, nil
	}
	if _, ok := r.inFlight[urn]; ok {
		return nil, fmt.Errorf("identity: resolver cycle detected at %s", urn)
	}
	r.inFlight[urn] = struct{}{}
	e, err := r.inner.Resolve(urn)
	delete(r.inFlight, urn)
	if err != nil {
		return nil, err
	}
	r.cache[urn] = e
	return e, nil
}

// MapResolver is a fixed, in-memory Resolver, useful for tests and for the
// identitystore cache's read path once entities have been loaded.
type MapResolver[T any] map[string]*Entity[T]

func (m MapResolver[T]) Resolve(urn string) (*Entity[T], error) {
	e, ok := m[urn]
	if !ok {
		return nil, ErrResolutionFailed
	}
	return e, nil
}
