// Package domain contains pure types with ZERO infrastructure imports.
// This is the innermost ring: it depends on nothing in internal/infra.
package domain

// PeerId is a peer's stable identifier, derived from its public key
// fingerprint. It is comparable and totally ordered (lexicographic on the
// underlying string) so it can key maps and sort deterministically.
type PeerId string

// Less gives PeerId a total order, used when a deterministic iteration
// order is needed (e.g. choosing a next hop tie-break in tests).
func (p PeerId) Less(other PeerId) bool { return p < other }

// Addr is an abstract transport address. The core never interprets it: it
// only stores, compares, and hands it back to the caller inside a Tick.
type Addr interface {
	comparable
	String() string
}

// PeerAdvertisement is a peer's self-description: the addresses it wants to
// be reached at, plus any capability bits a caller wants to carry.
// Capabilities are opaque strings, so the core never needs to know what a
// capability is.
type PeerAdvertisement[A Addr] struct {
	Addrs        []A
	Capabilities []string
}

// PartialPeerInfo holds what is known about a peer before a full exchange
// has completed: its id, optionally its advertisement (once we've received
// a Join/Neighbour from it), and whatever addresses we've observed it
// communicate from.
type PartialPeerInfo[A Addr] struct {
	PeerId    PeerId
	Advertised *PeerAdvertisement[A]
	SeenAddrs map[A]struct{}
}

// Sequence upgrades a PartialPeerInfo into a complete PeerInfo, succeeding
// only if an advertisement has been received. A partial entry without an
// advertisement is never "sequenced" — callers must evict it rather than
// treat it as a fully known peer.
func (p PartialPeerInfo[A]) Sequence() (PeerInfo[A], bool) {
	if p.Advertised == nil {
		return PeerInfo[A]{}, false
	}
	seen := make(map[A]struct{}, len(p.SeenAddrs))
	for a := range p.SeenAddrs {
		seen[a] = struct{}{}
	}
	return PeerInfo[A]{
		PeerId:        p.PeerId,
		AdvertisedInfo: *p.Advertised,
		SeenAddrs:      seen,
	}, true
}

// PeerInfo is everything known about a peer once a Join/Neighbour has been
// exchanged with it.
type PeerInfo[A Addr] struct {
	PeerId         PeerId
	AdvertisedInfo PeerAdvertisement[A]
	SeenAddrs      map[A]struct{}
}

// Partial demotes a complete PeerInfo back to a PartialPeerInfo, e.g. when
// inserting it into a structure that only ever held partial entries (the
// active set stores PartialPeerInfo; see membership.PartialView).
func (p PeerInfo[A]) Partial() PartialPeerInfo[A] {
	adv := p.AdvertisedInfo
	return PartialPeerInfo[A]{
		PeerId:     p.PeerId,
		Advertised: &adv,
		SeenAddrs:  p.SeenAddrs,
	}
}

// AddSeen records an observed address, mutating in place.
func (p *PeerInfo[A]) AddSeen(a A) {
	if p.SeenAddrs == nil {
		p.SeenAddrs = make(map[A]struct{}, 1)
	}
	p.SeenAddrs[a] = struct{}{}
}
