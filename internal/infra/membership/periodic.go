package membership

import (
	"context"
	"time"

	"github.com/weftmesh/weft/internal/domain"
)

// PeriodicEventKind discriminates the two periodic events a running Engine
// emits: a shuffle message to send, or passive candidates to promote.
type PeriodicEventKind int

const (
	// PeriodicShuffle carries the Tick produced by Engine.Shuffle — a
	// message to send to one active peer, if any were available.
	PeriodicShuffle PeriodicEventKind = iota
	// PeriodicPromote carries the passive candidates Engine.ChoosePassiveToPromote
	// selected to fill the active set.
	PeriodicPromote
)

// PeriodicEvent is one tick of the periodic driver's output. Exactly one of
// Shuffle/Promote is meaningful, selected by Kind.
type PeriodicEvent[A domain.Addr] struct {
	Kind    PeriodicEventKind
	Shuffle Tick[A]
	Promote []domain.PartialPeerInfo[A]
}

// Periodic is the bounded, drop-oldest event channel a PeriodicDriver
// publishes to: a capacity-1 buffer that always holds the most recently
// emitted event, so a slow consumer never blocks the producer and never
// sees a backlog of stale events: on back-pressure, the oldest pending
// event is dropped in favor of the newest.
type Periodic[A domain.Addr] struct {
	ch chan PeriodicEvent[A]
}

// NewPeriodic constructs an empty capacity-1 Periodic channel.
func NewPeriodic[A domain.Addr]() *Periodic[A] {
	return &Periodic[A]{ch: make(chan PeriodicEvent[A], 1)}
}

// Send pushes ev, discarding whatever unread event currently occupies the
// buffer. Never blocks.
func (p *Periodic[A]) Send(ev PeriodicEvent[A]) {
	select {
	case p.ch <- ev:
	default:
		select {
		case <-p.ch:
		default:
		}
		select {
		case p.ch <- ev:
		default:
		}
	}
}

// C exposes the receive side for a consumer's select loop.
func (p *Periodic[A]) C() <-chan PeriodicEvent[A] { return p.ch }

// PeriodicDriver runs an Engine's time-based behavior on two independent
// timers, periods taken from the Engine's Params: a shuffle timer that
// refreshes the passive set's address knowledge, and a promotion timer that
// tops up the active set from passive candidates whenever it has room.
// Neither timer mutates the view directly — each publishes a PeriodicEvent
// for the caller's network layer to act on, so periodic.go itself performs
// no I/O. Grounded on hpv.rs's periodic_tasks (reconstructed from its call
// sites in Hpv::new, since periodic.rs itself wasn't retrieved) and the
// teacher's gossip.SWIM.Start ticker-loop shape.
type PeriodicDriver[A domain.Addr] struct {
	engine *Engine[A]
	self   domain.PartialPeerInfo[A]
	events *Periodic[A]

	shufflePeriod time.Duration
	promotePeriod time.Duration
}

// NewPeriodicDriver constructs a driver for engine, publishing shuffle and
// promotion events to the returned Periodic channel. self is the local
// peer's own advertisement, embedded in outbound Shuffle/Join-style
// messages the driver builds.
func NewPeriodicDriver[A domain.Addr](engine *Engine[A], self domain.PartialPeerInfo[A], shufflePeriod, promotePeriod time.Duration) (*PeriodicDriver[A], *Periodic[A]) {
	events := NewPeriodic[A]()
	return &PeriodicDriver[A]{
		engine:        engine,
		self:          self,
		events:        events,
		shufflePeriod: shufflePeriod,
		promotePeriod: promotePeriod,
	}, events
}

// Run blocks, driving both periodic timers until ctx is cancelled. Intended
// to be launched in its own goroutine by the daemon; dropping the Engine
// handle has no effect on an already-running driver, so callers must cancel
// ctx themselves — the idiomatic Go equivalent of stopping a task on Drop.
func (d *PeriodicDriver[A]) Run(ctx context.Context) {
	shuffleTicker := time.NewTicker(d.shufflePeriod)
	defer shuffleTicker.Stop()
	promoteTicker := time.NewTicker(d.promotePeriod)
	defer promoteTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-shuffleTicker.C:
			d.shuffleTick()
		case <-promoteTicker.C:
			d.promoteTick()
		}
	}
}

func (d *PeriodicDriver[A]) shuffleTick() {
	tick, ok := d.engine.Shuffle(d.self)
	if !ok {
		log.Debugw("shuffle skipped, no active peers")
		return
	}
	d.events.Send(PeriodicEvent[A]{Kind: PeriodicShuffle, Shuffle: tick})
}

func (d *PeriodicDriver[A]) promoteTick() {
	candidates := d.engine.ChoosePassiveToPromote()
	if len(candidates) == 0 {
		return
	}
	d.events.Send(PeriodicEvent[A]{Kind: PeriodicPromote, Promote: candidates})
}
