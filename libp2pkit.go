// Package libp2pkit wires the swarm, peerstore, event bus, connection
// manager, resource manager and optional services (identify, NAT tracker,
// mDNS discovery) into a running Host, following the teacher's own root
// package: a single functional-options constructor over go.uber.org/fx
// lifecycle hooks, instead of a hand-assembled twenty-argument call.
package libp2pkit

import (
	"context"
	"fmt"
	"time"

	"github.com/student-p2p/swarmkit/config"
	"github.com/student-p2p/swarmkit/core/connmgr"
	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/event"
	"github.com/student-p2p/swarmkit/core/host"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/peerstore"
	"github.com/student-p2p/swarmkit/core/transport"
	"github.com/student-p2p/swarmkit/p2p/discovery/backoff"
	"github.com/student-p2p/swarmkit/p2p/discovery/mdns"
	basichost "github.com/student-p2p/swarmkit/p2p/host/basic"
	"github.com/student-p2p/swarmkit/p2p/host/eventbus"
	"github.com/student-p2p/swarmkit/p2p/host/natreachability"
	"github.com/student-p2p/swarmkit/p2p/host/peerstore/pstoremem"
	rcmgr "github.com/student-p2p/swarmkit/p2p/host/resource-manager"
	"github.com/student-p2p/swarmkit/p2p/metrics"
	"github.com/student-p2p/swarmkit/p2p/muxer/yamux"
	"github.com/student-p2p/swarmkit/p2p/net/conngater"
	connmgrimpl "github.com/student-p2p/swarmkit/p2p/net/connmgr"
	"github.com/student-p2p/swarmkit/p2p/net/swarm"
	"github.com/student-p2p/swarmkit/p2p/net/upgrader"
	"github.com/student-p2p/swarmkit/p2p/protocol/identify"
	"github.com/student-p2p/swarmkit/p2p/security/noise"
	memtransport "github.com/student-p2p/swarmkit/p2p/transport/memory"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/fx"
)

var log = logging.Logger("libp2pkit")

// Node is the assembled result of New: a running Host plus the optional
// collaborators wired alongside it, and everything needed to tear the
// whole graph down in dependency order.
type Node struct {
	host.Host

	natTracker *natreachability.Tracker
	mdnsSvc    *mdns.Service
	identifyS  host.IdentifyService

	app *fx.App
}

// Close stops every optional service and the host itself, in reverse
// construction order, via the fx lifecycle.
func (n *Node) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return n.app.Stop(ctx)
}

// NATTracker returns the reachability/NAT-behavior tracker, or nil if
// config.EnableNATServiceTracker wasn't passed to New.
func (n *Node) NATTracker() *natreachability.Tracker { return n.natTracker }

// IdentifyService returns the identify protocol collaborator, or nil if
// config.EnableIdentify wasn't passed to New.
func (n *Node) IdentifyService() host.IdentifyService { return n.identifyS }

// New assembles a Host from the given Options atop config.Default(),
// starting every enabled collaborator before returning.
func New(opts ...config.Option) (*Node, error) {
	cfg := config.Default()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("libp2pkit: applying option: %w", err)
		}
	}

	n := &Node{}
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(
			provideIdentity,
			providePeerstore,
			provideEventBus,
			provideResourceManager,
			provideConnManager,
			provideConnGater,
			provideSecurity,
			provideMuxer,
			provideUpgrader,
			provideTransports,
			provideSwarm,
			provideHost,
		),
		fx.Invoke(func(lc fx.Lifecycle, h *basichost.BasicHost, ps peerstore.Peerstore, rm *rcmgr.ResourceManager, bus event.Bus, sw *swarm.Swarm) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					for _, a := range cfg.ListenAddrs {
						if err := sw.Listen(a); err != nil {
							return fmt.Errorf("libp2pkit: listen %s: %w", a, err)
						}
					}
					h.Start()

					if cfg.EnableIdentify {
						ids, err := identify.NewIDService(h,
							identifyOpts(cfg)...,
						)
						if err != nil {
							return fmt.Errorf("libp2pkit: identify: %w", err)
						}
						ids.Start()
						n.identifyS = ids
					}

					if cfg.EnableNATTracker {
						servers := cfg.STUNServers
						if len(servers) == 0 {
							servers = natreachability.DefaultSTUNServers
						}
						tr, err := natreachability.New(bus, servers, natreachability.WithInterval(cfg.NATProbeInterval))
						if err != nil {
							return fmt.Errorf("libp2pkit: nat tracker: %w", err)
						}
						n.natTracker = tr
					}

					if cfg.EnableMDNS {
						conn, err := backoff.NewBackoffConnector(h, cfg.DiscoveryCacheLen,
							backoff.NewExponentialBackoff(time.Second, 10*time.Minute, 2, backoff.FullJitter))
						if err != nil {
							return fmt.Errorf("libp2pkit: backoff connector: %w", err)
						}
						svc := mdns.NewService(h, cfg.MDNSServiceName, conn)
						if err := svc.Start(); err != nil {
							return fmt.Errorf("libp2pkit: mdns: %w", err)
						}
						n.mdnsSvc = svc
					}

					if cfg.EnableMetrics {
						metrics.Register(sw, rm)
					}

					n.Host = h
					return nil
				},
				OnStop: func(ctx context.Context) error {
					if n.mdnsSvc != nil {
						if err := n.mdnsSvc.Close(); err != nil {
							log.Warnw("closing mdns service", "err", err)
						}
					}
					if n.natTracker != nil {
						if err := n.natTracker.Close(); err != nil {
							log.Warnw("closing nat tracker", "err", err)
						}
					}
					if n.identifyS != nil {
						if err := n.identifyS.Close(); err != nil {
							log.Warnw("closing identify service", "err", err)
						}
					}
					if err := h.Close(); err != nil {
						log.Warnw("closing host", "err", err)
					}
					return ps.Close()
				},
			})
		}),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return nil, fmt.Errorf("libp2pkit: starting fx app: %w", err)
	}
	n.app = app
	return n, nil
}

func identifyOpts(cfg config.Config) []identify.Option {
	var opts []identify.Option
	if cfg.UserAgent != "" {
		opts = append(opts, identify.WithUserAgent(cfg.UserAgent))
	}
	if cfg.DisableSignedRecords {
		opts = append(opts, identify.DisableSignedPeerRecord())
	}
	return opts
}

func provideIdentity(cfg config.Config) (crypto.PrivKey, peer.ID, error) {
	if cfg.PrivKey != nil {
		id, err := peer.IDFromPrivateKey(cfg.PrivKey)
		return cfg.PrivKey, id, err
	}
	priv, pub, err := crypto.GenerateKeyPair(crypto.Ed25519, 0)
	if err != nil {
		return nil, "", fmt.Errorf("libp2pkit: generating identity: %w", err)
	}
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return nil, "", err
	}
	return priv, id, nil
}

func providePeerstore(cfg config.Config, priv crypto.PrivKey, id peer.ID) (peerstore.Peerstore, error) {
	ps := pstoremem.NewPeerstore(clock.New(), cfg.PeerstoreSweepInterval)
	if err := ps.AddPrivKey(id, priv); err != nil {
		return nil, err
	}
	pub := priv.GetPublic()
	if err := ps.AddPubKey(id, pub); err != nil {
		return nil, err
	}
	return ps, nil
}

func provideEventBus() event.Bus {
	return eventbus.NewBus()
}

func provideResourceManager(cfg config.Config) *rcmgr.ResourceManager {
	return rcmgr.NewResourceManager(rcmgr.WithLimits(cfg.ResourceLimits))
}

func provideConnManager(cfg config.Config) (connmgr.ConnManager, error) {
	if !cfg.UseConnMgr {
		return nil, nil
	}
	return connmgrimpl.New(cfg.ConnMgr)
}

func provideConnGater(cfg config.Config) (connmgr.ConnGater, error) {
	if cfg.ConnGaterStore == nil {
		return nil, nil
	}
	return conngater.NewBasicConnGater(cfg.ConnGaterStore)
}

func provideSecurity(priv crypto.PrivKey) (*noise.Transport, error) {
	return noise.New(priv)
}

func provideMuxer() *yamux.Transport {
	return yamux.New()
}

func provideUpgrader(id peer.ID, sec *noise.Transport, mux *yamux.Transport, rm *rcmgr.ResourceManager, bus event.Bus) (*upgrader.Upgrader, error) {
	return upgrader.New(id, sec, mux, rm, bus)
}

func provideTransports() []transport.Transport {
	return []transport.Transport{memtransport.New()}
}

func provideSwarm(id peer.ID, ps peerstore.Peerstore, bus event.Bus, up *upgrader.Upgrader, ts []transport.Transport, cm connmgr.ConnManager, gater connmgr.ConnGater, rm *rcmgr.ResourceManager) (*swarm.Swarm, error) {
	var opts []swarm.Option
	if cm != nil {
		opts = append(opts, swarm.WithConnManager(cm))
	}
	if gater != nil {
		opts = append(opts, swarm.WithConnGater(gater))
	}
	if rm != nil {
		opts = append(opts, swarm.WithResourceManager(rm))
	}
	return swarm.New(id, ps, bus, up, ts, opts...)
}

func provideHost(sw *swarm.Swarm, ps peerstore.Peerstore, bus event.Bus, cm connmgr.ConnManager) (*basichost.BasicHost, error) {
	var opts []basichost.Option
	if cm != nil {
		opts = append(opts, basichost.WithConnManager(cm))
	}
	return basichost.New(sw, ps, bus, opts...)
}
