package membership

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/weftmesh/weft/internal/domain"
)

var log = logging.Logger("membership")

// ErrJoinWhileConnected is returned (as a transition-less no-op from Apply,
// never panics) when a Join is received from a peer that is already active.
// Grounded on hpv.rs's JoinWhileConnected branch of the Join arm.
var ErrJoinWhileConnected = errors.New("membership: join received from already-active peer")

// Params configures an Engine. Unlike HpvInner::new in hpv.rs — which
// discards the caller's params and substitutes Default::default() — NewEngine
// retains exactly what the caller passed (see DESIGN.md, Open Question
// decisions).
type Params struct {
	MaxActive              int
	MaxPassive             int
	ActiveRandomWalkLength int // TTL a Join's ForwardJoin travels before the receiver must add it to active
	PassiveRandomWalkLength int // carried in configuration; the Engine does not read it
	ShuffleSampleSize      int // how many peers a Shuffle carries
	ShuffleTTL             int

	// ShufflePeriod and PromotePeriod are the two independent timers
	// PeriodicDriver runs on. Zero means "driver not used with this Params
	// value" — callers that only exercise Engine directly (e.g. tests) need
	// not set them.
	ShufflePeriod time.Duration
	PromotePeriod time.Duration
}

// DefaultParams returns the HyParView paper's commonly cited defaults.
func DefaultParams() Params {
	return Params{
		MaxActive:               5,
		MaxPassive:              30,
		ActiveRandomWalkLength:  6,
		PassiveRandomWalkLength: 3,
		ShuffleSampleSize:       8,
		ShuffleTTL:              3,
		ShufflePeriod:           30 * time.Second,
		PromotePeriod:           10 * time.Second,
	}
}

// Engine is the concurrency-safe HyParView node core. A single RWMutex
// guards the underlying PartialView; no lock is ever held across I/O or a
// channel send — every mutating method returns a TnT batch instead of
// performing side effects itself. Grounded on hpv.rs's Hpv/HpvInner
// (Arc<RwLock<HpvInner>> wrapping PartialView, periodic task spawned
// separately — see periodic.go).
type Engine[A domain.Addr] struct {
	mu      sync.RWMutex
	view    *PartialView[A]
	params  Params
	localID domain.PeerId
	rng     *rand.Rand
}

// NewEngine constructs an Engine for localID.
func NewEngine[A domain.Addr](localID domain.PeerId, params Params, rng *rand.Rand) *Engine[A] {
	return &Engine[A]{
		view:    NewPartialView[A](localID, params.MaxActive, params.MaxPassive, rng),
		params:  params,
		localID: localID,
		rng:     rng,
	}
}

// Params returns the Engine's configuration.
func (e *Engine[A]) Params() Params { return e.params }

// ViewStats reports the current active and passive set sizes.
func (e *Engine[A]) ViewStats() (numActive, numPassive int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.NumActive(), e.view.NumPassive()
}

// IsActive reports whether id is in the active set.
func (e *Engine[A]) IsActive(id domain.PeerId) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.IsActive(id)
}

// Known reports whether id appears in either set.
func (e *Engine[A]) Known(id domain.PeerId) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.Known(id)
}

// Hello chooses the handshake message a node should open a new connection
// with, based on the local view's current size. Grounded on hpv.rs's hello:
// an empty view opens with Join; a view with only passive peers announces
// need_friends so the remote promotes us even when its own active set is
// full; a view that already has active peers uses a plain Neighbour.
func (e *Engine[A]) Hello(self domain.PartialPeerInfo[A]) Message[A] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.helloLocked(self)
}

// helloLocked is Hello for callers that already hold e.mu.
func (e *Engine[A]) helloLocked(self domain.PartialPeerInfo[A]) Message[A] {
	numActive, numPassive := e.view.NumActive(), e.view.NumPassive()
	if numActive == 0 && numPassive == 0 {
		return Message[A]{Kind: MsgJoin, Sender: self}
	}
	needFriends := numActive == 0
	return Message[A]{Kind: MsgNeighbour, Sender: self, NeedFriends: &needFriends}
}

// ChoosePassiveToPromote picks enough passive peers to fill the active set,
// drawn only from sequenced (fully known) entries. Grounded on hpv.rs's
// choose_passive_to_promote.
func (e *Engine[A]) ChoosePassiveToPromote() []domain.PartialPeerInfo[A] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	need := e.params.MaxActive - e.view.NumActive()
	if need <= 0 {
		return nil
	}
	return choosePromotable(e.view.PassiveInfo(), need, e.rng)
}

func choosePromotable[A domain.Addr](candidates []domain.PartialPeerInfo[A], need int, rng *rand.Rand) []domain.PartialPeerInfo[A] {
	sequenced := make([]domain.PartialPeerInfo[A], 0, len(candidates))
	for _, c := range candidates {
		if _, ok := c.Sequence(); ok {
			sequenced = append(sequenced, c)
		}
	}
	rng.Shuffle(len(sequenced), func(i, j int) { sequenced[i], sequenced[j] = sequenced[j], sequenced[i] })
	if len(sequenced) > need {
		sequenced = sequenced[:need]
	}
	return sequenced
}

// ConnectionLost reacts to a transport-level disconnect from id: it demotes
// id in the view, and if that leaves the active set under-full, asks the
// caller (via Connect ticks) to open connections to replacement peers drawn
// from the passive set. Grounded on hpv.rs's connection_lost.
func (e *Engine[A]) ConnectionLost(self domain.PartialPeerInfo[A], id domain.PeerId) TnT[A] {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := TnT[A]{}
	out = out.WithTransition(e.view.Demote(id))

	need := e.params.MaxActive - e.view.NumActive()
	if need <= 0 {
		return out
	}
	promotable := choosePromotable(e.view.PassiveInfo(), need, e.rng)
	for _, p := range promotable {
		adv := p.Advertised
		if adv == nil || len(adv.Addrs) == 0 {
			continue
		}
		out = out.WithTick(Tick[A]{
			Kind:    TickConnect,
			Peer:    p.PeerId,
			Addr:    adv.Addrs[0],
			Message: e.helloLocked(self),
		})
	}
	return out
}

// Apply processes an inbound Message, returning the resulting transitions
// and deferred I/O. from is the peer the message logically originates from
// (the already-authenticated connection it arrived on); fromAddr is the
// transport address it was physically received from, recorded as a
// seen-address observation. Grounded on hpv.rs's Hpv::apply match arms.
func (e *Engine[A]) Apply(from domain.PeerId, fromAddr A, msg Message[A]) (TnT[A], error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch msg.Kind {
	case MsgJoin:
		return e.applyJoin(from, fromAddr, msg)
	case MsgForwardJoin:
		return e.applyForwardJoin(from, msg), nil
	case MsgNeighbour:
		return e.applyNeighbour(from, fromAddr, msg), nil
	case MsgDisconnect:
		return TnT[A]{Transitions: []Transition[A]{e.view.Demote(from)}}, nil
	case MsgShuffle:
		return e.applyShuffle(from, fromAddr, msg), nil
	case MsgShuffleReply:
		return e.applyShuffleReply(msg), nil
	default:
		log.Warnw("dropping message of unknown kind", "kind", msg.Kind, "from", from)
		return TnT[A]{}, nil
	}
}

// authenticatedSender builds the PartialPeerInfo to record for a message's
// sender: identity (from) and seen-address (fromAddr) come from the
// already-authenticated connection the message arrived on, never from the
// self-declared message body — only the advertisement itself (addresses the
// peer claims to be reachable at) is taken from what the peer said. Grounded
// on hpv.rs's apply, which builds PeerInfo from (remote_peer, info,
// remote_addr) rather than trusting a claimed sender identity.
func authenticatedSender[A domain.Addr](from domain.PeerId, fromAddr A, claimed domain.PartialPeerInfo[A]) domain.PartialPeerInfo[A] {
	return domain.PartialPeerInfo[A]{
		PeerId:     from,
		Advertised: claimed.Advertised,
		SeenAddrs:  map[A]struct{}{fromAddr: {}},
	}
}

// applyJoin is the only Apply arm that surfaces a protocol error to the
// caller: every other malformed-input case is dropped silently.
func (e *Engine[A]) applyJoin(from domain.PeerId, fromAddr A, msg Message[A]) (TnT[A], error) {
	if e.view.IsActive(from) {
		return TnT[A]{}, ErrJoinWhileConnected
	}
	sender := authenticatedSender(from, fromAddr, msg.Sender)
	out := TnT[A]{}
	out = out.WithTransitions(e.view.AddActive(from, sender))

	forward := Message[A]{
		Kind:   MsgForwardJoin,
		Sender: sender,
		TTL:    e.params.ActiveRandomWalkLength,
	}
	for _, peer := range e.view.ActiveInfo() {
		if peer.PeerId == from {
			continue
		}
		out = out.WithTick(Tick[A]{Kind: TickTry, Peer: peer.PeerId, Message: forward})
	}
	return out, nil
}

func (e *Engine[A]) applyForwardJoin(from domain.PeerId, msg Message[A]) TnT[A] {
	joiner := msg.Sender.PeerId
	haveRoom := e.view.NumActive() < e.params.MaxActive
	if haveRoom && !e.view.IsActive(joiner) && joiner != e.localID {
		adv := msg.Sender.Advertised
		if adv != nil && len(adv.Addrs) > 0 {
			return TnT[A]{Ticks: []Tick[A]{{
				Kind: TickConnect,
				Peer: joiner,
				Addr: adv.Addrs[0],
				Message: Message[A]{
					Kind:   MsgNeighbour,
					Sender: domain.PartialPeerInfo[A]{PeerId: e.localID},
				},
			}}}
		}
	}
	if msg.TTL == 0 {
		if full, ok := msg.Sender.Sequence(); ok {
			if t := e.view.AddPassive(joiner, full); t != nil {
				return TnT[A]{Transitions: []Transition[A]{*t}}
			}
		}
		return TnT[A]{}
	}

	next := msg
	next.TTL--
	candidates := e.view.ActiveInfo()
	var forwardTo []domain.PeerId
	for _, c := range candidates {
		if c.PeerId != from {
			forwardTo = append(forwardTo, c.PeerId)
		}
	}
	if len(forwardTo) == 0 {
		return TnT[A]{}
	}
	target := forwardTo[e.rng.Intn(len(forwardTo))]
	return TnT[A]{Ticks: []Tick[A]{{Kind: TickTry, Peer: target, Message: next}}}
}

func (e *Engine[A]) applyNeighbour(from domain.PeerId, fromAddr A, msg Message[A]) TnT[A] {
	needFriends := msg.NeedFriends != nil && *msg.NeedFriends
	haveRoom := e.view.NumActive() < e.params.MaxActive
	if needFriends || haveRoom {
		return TnT[A]{Transitions: e.view.AddActive(from, authenticatedSender(from, fromAddr, msg.Sender))}
	}
	return TnT[A]{Ticks: []Tick[A]{{Kind: TickReply, Peer: from, Message: Message[A]{Kind: MsgDisconnect}}}}
}

func (e *Engine[A]) applyShuffle(from domain.PeerId, fromAddr A, msg Message[A]) TnT[A] {
	if msg.TTL == 0 {
		if msg.Origin == e.localID {
			return TnT[A]{}
		}
		out := TnT[A]{}
		sample := e.sampleLocked(e.params.ShuffleSampleSize)
		out = out.WithTick(Tick[A]{
			Kind: TickTry,
			Peer: from,
			Message: Message[A]{Kind: MsgShuffleReply, Sample: sample},
		})
		for _, p := range msg.Sample {
			if full, ok := p.Sequence(); ok {
				if t := e.view.AddPassive(p.PeerId, full); t != nil {
					out = out.WithTransition(*t)
				}
			}
		}
		return out
	}

	if msg.Origin == from {
		e.view.RecordSeenActive(from, fromAddr)
	}
	next := msg
	next.TTL--
	var forwardTo []domain.PeerId
	for _, c := range e.view.ActiveInfo() {
		if c.PeerId != from {
			forwardTo = append(forwardTo, c.PeerId)
		}
	}
	if len(forwardTo) == 0 {
		return TnT[A]{}
	}
	target := forwardTo[e.rng.Intn(len(forwardTo))]
	return TnT[A]{Ticks: []Tick[A]{{Kind: TickTry, Peer: target, Message: next}}}
}

func (e *Engine[A]) applyShuffleReply(msg Message[A]) TnT[A] {
	out := TnT[A]{}
	for _, p := range msg.Sample {
		if full, ok := p.Sequence(); ok {
			if t := e.view.AddPassive(p.PeerId, full); t != nil {
				out = out.WithTransition(*t)
			}
		}
	}
	return out
}

// Shuffle builds a periodic Shuffle message and picks the active peer to
// send it to, for the periodic driver to act on. Grounded on hpv.rs's
// shuffle, invoked from the node's periodic task.
func (e *Engine[A]) Shuffle(self domain.PartialPeerInfo[A]) (Tick[A], bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	actives := e.view.ActiveInfo()
	if len(actives) == 0 {
		return Tick[A]{}, false
	}
	recipient := actives[e.rng.Intn(len(actives))]
	sample := e.sampleLocked(e.params.ShuffleSampleSize)
	return Tick[A]{
		Kind: TickTry,
		Peer: recipient.PeerId,
		Message: Message[A]{
			Kind:   MsgShuffle,
			Origin: e.localID,
			TTL:    e.params.ShuffleTTL,
			Sample: sample,
		},
	}, true
}

// sampleLocked draws up to sz peers to advertise in a Shuffle, preferring
// sequenced active entries and topping up from the passive set. Caller must
// hold e.mu. Grounded on hpv.rs's sample.
func (e *Engine[A]) sampleLocked(sz int) []domain.PartialPeerInfo[A] {
	var sequencedActive []domain.PartialPeerInfo[A]
	for _, a := range e.view.ActiveInfo() {
		if _, ok := a.Sequence(); ok {
			sequencedActive = append(sequencedActive, a)
		}
	}
	e.rng.Shuffle(len(sequencedActive), func(i, j int) {
		sequencedActive[i], sequencedActive[j] = sequencedActive[j], sequencedActive[i]
	})
	out := sequencedActive
	if len(out) > sz {
		return out[:sz]
	}
	remaining := sz - len(out)
	passive := e.view.PassiveInfo()
	e.rng.Shuffle(len(passive), func(i, j int) { passive[i], passive[j] = passive[j], passive[i] })
	if len(passive) > remaining {
		passive = passive[:remaining]
	}
	return append(out, passive...)
}

// BroadcastRecipients returns every currently active peer, the fan-out set
// for application-level gossip broadcast riding on top of the membership
// layer.
func (e *Engine[A]) BroadcastRecipients() []domain.PeerId {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.PeerId, 0, e.view.NumActive())
	for _, p := range e.view.ActiveInfo() {
		out = append(out, p.PeerId)
	}
	return out
}
