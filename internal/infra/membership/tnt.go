package membership

import "github.com/weftmesh/weft/internal/domain"

// TickKind discriminates the deferred I/O actions an Engine call can ask
// for. The core never performs these itself; it only describes them, so
// that no lock is ever held across network I/O.
type TickKind int

const (
	// TickConnect asks the caller to open a connection to Peer at Addr and
	// send Message once established.
	TickConnect TickKind = iota
	// TickReply asks the caller to send Message back on the connection
	// Peer was received on, without opening a new one.
	TickReply
	// TickTry asks the caller to send Message to Peer only if a connection
	// to it is already open; silently dropped otherwise. Used for
	// forwarding to an already-active peer (ForwardJoin, Shuffle) and for
	// shuffle replies.
	TickTry
	// TickDisconnect asks the caller to close the connection to Peer.
	TickDisconnect
)

// Tick is a single deferred side effect. Grounded on hpv.rs's Tick enum.
type Tick[A domain.Addr] struct {
	Kind    TickKind
	Peer    domain.PeerId
	Addr    A
	Message Message[A]
}

// TnT ("Transitions and Ticks") bundles the state changes and deferred I/O
// produced by one Engine call. It forms a monoid under Concat: the zero
// value is the identity, and combining preserves order, so callers can fold
// the results of several internal steps into one batch before acting.
// Grounded on hpv.rs's TnT<Addr>.
type TnT[A domain.Addr] struct {
	Transitions []Transition[A]
	Ticks       []Tick[A]
}

// Concat appends other's contents after t's, returning the combined batch.
func (t TnT[A]) Concat(other TnT[A]) TnT[A] {
	out := TnT[A]{
		Transitions: make([]Transition[A], 0, len(t.Transitions)+len(other.Transitions)),
		Ticks:       make([]Tick[A], 0, len(t.Ticks)+len(other.Ticks)),
	}
	out.Transitions = append(out.Transitions, t.Transitions...)
	out.Transitions = append(out.Transitions, other.Transitions...)
	out.Ticks = append(out.Ticks, t.Ticks...)
	out.Ticks = append(out.Ticks, other.Ticks...)
	return out
}

// ConcatAll folds a sequence of batches into one, in order. The zero-value
// TnT is the identity element, matching the Rust side's Default/FromIterator
// monoid instance.
func ConcatAll[A domain.Addr](batches ...TnT[A]) TnT[A] {
	var out TnT[A]
	for _, b := range batches {
		out = out.Concat(b)
	}
	return out
}

// WithTransition appends a single transition, skipping the zero Transition
// produced by a no-op operation.
func (t TnT[A]) WithTransition(tr Transition[A]) TnT[A] {
	if tr == (Transition[A]{}) {
		return t
	}
	t.Transitions = append(t.Transitions, tr)
	return t
}

// WithTransitions appends zero or more transitions.
func (t TnT[A]) WithTransitions(trs []Transition[A]) TnT[A] {
	t.Transitions = append(t.Transitions, trs...)
	return t
}

// WithTick appends a single tick.
func (t TnT[A]) WithTick(tick Tick[A]) TnT[A] {
	t.Ticks = append(t.Ticks, tick)
	return t
}
