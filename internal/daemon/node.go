package daemon

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/weftmesh/weft/internal/domain"
	"github.com/weftmesh/weft/internal/infra/identitystore"
	"github.com/weftmesh/weft/internal/infra/membership"
	"github.com/weftmesh/weft/internal/infra/transport"
)

// Node bootstraps and owns a running node's membership engine, transport,
// periodic driver, and identity cache: the process-level composition root,
// with a zap.NewProductionConfig()-style logger construction.
type Node struct {
	cfg        Config
	log        *zap.Logger
	engine     *membership.Engine[transport.Addr]
	transport  *transport.Transport
	periodic   *membership.PeriodicDriver[transport.Addr]
	events     *membership.Periodic[transport.Addr]
	identities *identitystore.Store[map[string]any]
	metrics    *membership.Metrics
	registry   *prometheus.Registry
	self       domain.PartialPeerInfo[transport.Addr]
}

func randomSeed() int64 { return time.Now().UnixNano() }

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

// NewNode constructs a Node from cfg for the caller-supplied localID,
// listening on listenAddr once Run is called.
func NewNode(cfg Config, localID domain.PeerId, listenAddr transport.Addr) (*Node, error) {
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("daemon: build logger: %w", err)
	}

	identities, err := identitystore.Open[map[string]any](cfg.Identity.CachePath)
	if err != nil {
		return nil, fmt.Errorf("daemon: open identity store: %w", err)
	}

	shuffleInterval, err := time.ParseDuration(cfg.Membership.ShuffleInterval)
	if err != nil {
		shuffleInterval = 30 * time.Second
	}
	promoteInterval, err := time.ParseDuration(cfg.Membership.PromoteInterval)
	if err != nil {
		promoteInterval = 10 * time.Second
	}

	params := membership.Params{
		MaxActive:               cfg.Membership.MaxActive,
		MaxPassive:              cfg.Membership.MaxPassive,
		ActiveRandomWalkLength:  cfg.Membership.ActiveRandomWalkLength,
		PassiveRandomWalkLength: cfg.Membership.PassiveRandomWalkLength,
		ShuffleSampleSize:       cfg.Membership.ShuffleSampleSize,
		ShuffleTTL:              cfg.Membership.ShuffleTTL,
		ShufflePeriod:           shuffleInterval,
		PromotePeriod:           promoteInterval,
	}
	rng := rand.New(rand.NewSource(randomSeed()))
	engine := membership.NewEngine[transport.Addr](localID, params, rng)

	self := domain.PartialPeerInfo[transport.Addr]{
		PeerId:     localID,
		Advertised: &domain.PeerAdvertisement[transport.Addr]{Addrs: []transport.Addr{listenAddr}},
	}
	tr := transport.New(engine, self)

	periodic, events := membership.NewPeriodicDriver(engine, self, params.ShufflePeriod, params.PromotePeriod)

	registry := prometheus.NewRegistry()
	metrics := membership.NewMetrics(registry, "weft")
	tr.SetMetrics(metrics)

	return &Node{
		cfg:        cfg,
		log:        logger,
		engine:     engine,
		transport:  tr,
		periodic:   periodic,
		events:     events,
		identities: identities,
		metrics:    metrics,
		registry:   registry,
		self:       self,
	}, nil
}

// Engine returns the node's membership engine.
func (n *Node) Engine() *membership.Engine[transport.Addr] { return n.engine }

// Identities returns the node's identity cache.
func (n *Node) Identities() *identitystore.Store[map[string]any] { return n.identities }

// Registry returns the node's Prometheus registry.
func (n *Node) Registry() *prometheus.Registry { return n.registry }

// Run starts the transport listener and periodic shuffle loop, blocking
// until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	addr := n.self.Advertised.Addrs[0]
	if err := n.transport.Listen(addr); err != nil {
		return err
	}
	n.log.Info("node listening", zap.String("addr", addr.String()))

	go n.periodic.Run(ctx)
	go n.consumePeriodicEvents(ctx)
	go n.observeViewStats(ctx)

	return n.transport.Run(ctx)
}

// consumePeriodicEvents drains the periodic driver's event channel and turns
// each event into the I/O it describes: a Shuffle event carries a single
// Tick to send, a Promote event carries candidates to dial. The periodic
// driver itself never touches the network — the caller interprets ticks as
// outbound messages or connection attempts.
func (n *Node) consumePeriodicEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.events.C():
			switch ev.Kind {
			case membership.PeriodicShuffle:
				n.transport.Execute(ctx, membership.TnT[transport.Addr]{Ticks: []membership.Tick[transport.Addr]{ev.Shuffle}})
			case membership.PeriodicPromote:
				n.promote(ctx, ev.Promote)
			}
		}
	}
}

func (n *Node) promote(ctx context.Context, candidates []domain.PartialPeerInfo[transport.Addr]) {
	for _, c := range candidates {
		adv := c.Advertised
		if adv == nil || len(adv.Addrs) == 0 {
			continue
		}
		n.transport.Execute(ctx, membership.TnT[transport.Addr]{Ticks: []membership.Tick[transport.Addr]{{
			Kind:    membership.TickConnect,
			Peer:    c.PeerId,
			Addr:    adv.Addrs[0],
			Message: n.engine.Hello(n.self),
		}}})
	}
}

func (n *Node) observeViewStats(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			numActive, numPassive := n.engine.ViewStats()
			n.metrics.ObserveViewStats(numActive, numPassive)
		}
	}
}

// Close releases the node's transport connections and identity store.
func (n *Node) Close() error {
	if err := n.transport.Close(); err != nil {
		n.log.Warn("error closing transport", zap.Error(err))
	}
	return n.identities.Close()
}
