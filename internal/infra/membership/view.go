// Package membership implements the HyParView partial-view gossip
// membership protocol: a bounded active set of open connections and a
// bounded passive set of reserve peers, maintained by random substitution
// rather than consensus.
package membership

import (
	"math/rand"

	"github.com/weftmesh/weft/internal/domain"
)

// TransitionKind discriminates the peer-state changes PartialView emits.
type TransitionKind int

const (
	// Promoted means a peer moved from passive (or unknown) into active.
	Promoted TransitionKind = iota
	// Demoted means a peer moved from active to passive.
	Demoted
	// Evicted means a peer was dropped from the view entirely.
	Evicted
)

// Transition describes a single peer-state change, returned so callers can
// react (e.g. update metrics, notify a transport layer) without PartialView
// itself knowing about anything outside its own bookkeeping.
type Transition[A domain.Addr] struct {
	Kind TransitionKind
	Peer domain.PeerId
}

// PartialView holds the bounded active and passive peer sets of a single
// HyParView node. It performs no I/O; every mutating method returns the
// Transition values a caller should react to. Grounded line-for-line on
// partial_view.rs's PartialView<Rng, Addr>.
type PartialView[A domain.Addr] struct {
	localID    domain.PeerId
	maxActive  int
	maxPassive int
	rng        *rand.Rand

	active  map[domain.PeerId]domain.PartialPeerInfo[A]
	passive map[domain.PeerId]domain.PeerInfo[A]
}

// NewPartialView constructs an empty view for localID with the given
// bounds. rng is held, not copied, so callers can inject a seeded source
// for deterministic tests.
func NewPartialView[A domain.Addr](localID domain.PeerId, maxActive, maxPassive int, rng *rand.Rand) *PartialView[A] {
	return &PartialView[A]{
		localID:    localID,
		maxActive:  maxActive,
		maxPassive: maxPassive,
		rng:        rng,
		active:     make(map[domain.PeerId]domain.PartialPeerInfo[A]),
		passive:    make(map[domain.PeerId]domain.PeerInfo[A]),
	}
}

// NumActive returns the current active-set size.
func (v *PartialView[A]) NumActive() int { return len(v.active) }

// NumPassive returns the current passive-set size.
func (v *PartialView[A]) NumPassive() int { return len(v.passive) }

// IsActive reports whether id is currently in the active set.
func (v *PartialView[A]) IsActive(id domain.PeerId) bool {
	_, ok := v.active[id]
	return ok
}

// ActiveInfo returns every active peer's PartialPeerInfo, snapshotted.
func (v *PartialView[A]) ActiveInfo() []domain.PartialPeerInfo[A] {
	out := make([]domain.PartialPeerInfo[A], 0, len(v.active))
	for _, info := range v.active {
		out = append(out, info)
	}
	return out
}

// PassiveInfo returns every passive peer's info as PartialPeerInfo,
// snapshotted. Every entry in the passive set is, by construction, fully
// sequenced (see AddPassive), so the conversion never drops an advertisement.
func (v *PartialView[A]) PassiveInfo() []domain.PartialPeerInfo[A] {
	out := make([]domain.PartialPeerInfo[A], 0, len(v.passive))
	for _, info := range v.passive {
		out = append(out, info.Partial())
	}
	return out
}

// RecordSeenActive notes that addr was observed in communication from the
// active peer id, mutating its PartialPeerInfo in place. No-op if id is not
// active.
func (v *PartialView[A]) RecordSeenActive(id domain.PeerId, addr A) {
	info, ok := v.active[id]
	if !ok {
		return
	}
	if info.SeenAddrs == nil {
		info.SeenAddrs = make(map[A]struct{}, 1)
	}
	info.SeenAddrs[addr] = struct{}{}
	v.active[id] = info
}

// Known reports whether id appears in either set.
func (v *PartialView[A]) Known(id domain.PeerId) bool {
	if _, ok := v.active[id]; ok {
		return true
	}
	_, ok := v.passive[id]
	return ok
}

// randomActiveKey picks a uniformly random key from the active set, or the
// zero PeerId and false if the set is empty.
func (v *PartialView[A]) randomActiveKey() (domain.PeerId, bool) {
	return randomKey(v.rng, v.active)
}

// randomKey picks a uniformly random key out of m, or the zero key and false
// if m is empty. Generic over the map's value type so both the active set
// (PartialPeerInfo) and the passive set (PeerInfo) share one implementation.
func randomKey[K comparable, V any](rng *rand.Rand, m map[K]V) (K, bool) {
	n := len(m)
	if n == 0 {
		var zero K
		return zero, false
	}
	skip := rng.Intn(n)
	i := 0
	for k := range m {
		if i == skip {
			return k, true
		}
		i++
	}
	panic("unreachable")
}

// DemoteRandom demotes a uniformly random active peer, as partial_view.rs's
// demote_random. Returns false if the active set is empty.
func (v *PartialView[A]) DemoteRandom() (Transition[A], bool) {
	id, ok := v.randomActiveKey()
	if !ok {
		return Transition[A]{}, false
	}
	return v.Demote(id), true
}

// Demote moves id from active to passive. If id cannot be "sequenced" (no
// advertisement was ever received for it), it is evicted instead — an
// un-sequenced peer carries nothing worth keeping in reserve.
func (v *PartialView[A]) Demote(id domain.PeerId) Transition[A] {
	info, ok := v.active[id]
	if !ok {
		return Transition[A]{Kind: Evicted, Peer: id}
	}
	delete(v.active, id)
	full, ok := info.Sequence()
	if !ok {
		return Transition[A]{Kind: Evicted, Peer: id}
	}
	v.insertPassive(id, full)
	return Transition[A]{Kind: Demoted, Peer: id}
}

// AddActive inserts id into the active set, demoting a random incumbent if
// the set is already full. No-op (no transition) if id is the local peer or
// already active.
func (v *PartialView[A]) AddActive(id domain.PeerId, info domain.PartialPeerInfo[A]) []Transition[A] {
	if id == v.localID {
		return nil
	}
	if _, ok := v.active[id]; ok {
		return nil
	}
	var out []Transition[A]
	if len(v.active) >= v.maxActive {
		if t, ok := v.DemoteRandom(); ok {
			out = append(out, t)
		}
	}
	delete(v.passive, id)
	v.active[id] = info
	out = append(out, Transition[A]{Kind: Promoted, Peer: id})
	return out
}

// insertPassive places info into the passive set, evicting a random
// incumbent first if full.
func (v *PartialView[A]) insertPassive(id domain.PeerId, info domain.PeerInfo[A]) *Transition[A] {
	if existing, ok := v.passive[id]; ok {
		v.passive[id] = mergePeerInfo(existing, info)
		return nil
	}
	var evicted *Transition[A]
	if len(v.passive) >= v.maxPassive {
		if t, ok := v.EvictRandom(); ok {
			evicted = &t
		}
	}
	v.passive[id] = info
	return evicted
}

// mergePeerInfo combines two full records for the same peer: the newer
// advertisement wins (AdvertisedInfo is always present on PeerInfo), and
// seen-address sets union. Mirrors partial_view.rs's add_passive
// merge-on-existing branch.
func mergePeerInfo[A domain.Addr](existing, incoming domain.PeerInfo[A]) domain.PeerInfo[A] {
	merged := existing
	merged.AdvertisedInfo = incoming.AdvertisedInfo
	if len(incoming.SeenAddrs) > 0 {
		seen := make(map[A]struct{}, len(merged.SeenAddrs)+len(incoming.SeenAddrs))
		for a := range merged.SeenAddrs {
			seen[a] = struct{}{}
		}
		for a := range incoming.SeenAddrs {
			seen[a] = struct{}{}
		}
		merged.SeenAddrs = seen
	}
	return merged
}

// AddPassive inserts or merges id into the passive set. No-op if id is the
// local peer or already active — a connection we already hold open makes a
// poor reserve entry. info must already be sequenced (carry an
// advertisement): a partial entry without one is evicted rather than
// demoted/added-to-passive, per the design note on unsequenced peers.
// Returns the eviction transition, if any, caused by making room.
func (v *PartialView[A]) AddPassive(id domain.PeerId, info domain.PeerInfo[A]) *Transition[A] {
	if id == v.localID {
		return nil
	}
	if _, ok := v.active[id]; ok {
		return nil
	}
	return v.insertPassive(id, info)
}

// EvictRandom evicts a uniformly random passive peer. Returns false if the
// passive set is empty.
func (v *PartialView[A]) EvictRandom() (Transition[A], bool) {
	id, ok := randomKey(v.rng, v.passive)
	if !ok {
		return Transition[A]{}, false
	}
	return v.Evict(id), true
}

// Evict drops id from the passive set unconditionally.
func (v *PartialView[A]) Evict(id domain.PeerId) Transition[A] {
	delete(v.passive, id)
	return Transition[A]{Kind: Evicted, Peer: id}
}
