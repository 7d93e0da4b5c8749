// Package config collects the functional options libp2pkit.New accepts,
// following the teacher's own libp2p.Option / identify.Option shape: small
// closures over the Config struct, rather than a constructor with
// a long positional-argument list.
package config

import (
	"time"

	"github.com/student-p2p/swarmkit/core/crypto"
	rcmgr "github.com/student-p2p/swarmkit/p2p/host/resource-manager"
	connmgrimpl "github.com/student-p2p/swarmkit/p2p/net/connmgr"

	ds "github.com/ipfs/go-datastore"
	ma "github.com/multiformats/go-multiaddr"
)

// Config is assembled by applying a caller's Options over Default(). Its
// shape is the module's single source of truth for what libp2pkit.New is
// allowed to be configured with.
type Config struct {
	PrivKey crypto.PrivKey

	ListenAddrs []ma.Multiaddr

	PeerstoreSweepInterval time.Duration

	ConnMgr    connmgrimpl.Config
	UseConnMgr bool

	ConnGaterStore ds.Datastore

	ResourceLimits rcmgr.LimitConfig

	EnableIdentify       bool
	UserAgent            string
	DisableSignedRecords bool

	EnableNATTracker   bool
	STUNServers        []string
	NATProbeInterval   time.Duration

	EnableMDNS        bool
	MDNSServiceName   string
	DiscoveryCacheLen int

	EnableMetrics bool
}

// Option mutates a Config under construction.
type Option func(*Config) error

// Default returns the baseline Config every libp2pkit.New call starts from
// before applying the caller's Options.
func Default() Config {
	return Config{
		PeerstoreSweepInterval: time.Minute,
		ConnMgr:                connmgrimpl.DefaultConfig(),
		ResourceLimits:         rcmgr.DefaultLimits(),
		UserAgent:              "github.com/student-p2p/swarmkit",
		NATProbeInterval:       10 * time.Minute,
		MDNSServiceName:        "_p2p._udp",
		DiscoveryCacheLen:      128,
	}
}

// Identity sets the host's static private key. If omitted, libp2pkit.New
// generates a fresh Ed25519 keypair.
func Identity(sk crypto.PrivKey) Option {
	return func(c *Config) error {
		c.PrivKey = sk
		return nil
	}
}

// ListenAddrStrings parses each addr as a multiaddr and adds it to the
// listen set.
func ListenAddrStrings(addrs ...string) Option {
	return func(c *Config) error {
		for _, s := range addrs {
			a, err := ma.NewMultiaddr(s)
			if err != nil {
				return err
			}
			c.ListenAddrs = append(c.ListenAddrs, a)
		}
		return nil
	}
}

// ListenAddrs adds already-parsed multiaddrs to the listen set.
func ListenAddrs(addrs ...ma.Multiaddr) Option {
	return func(c *Config) error {
		c.ListenAddrs = append(c.ListenAddrs, addrs...)
		return nil
	}
}

// PeerstoreGC overrides the in-memory peerstore's background sweep
// interval, which determines how promptly expired addresses are evicted.
func PeerstoreGC(sweepInterval time.Duration) Option {
	return func(c *Config) error {
		c.PeerstoreSweepInterval = sweepInterval
		return nil
	}
}

// ConnectionManager replaces the default low/high watermark connection
// manager config.
func ConnectionManager(low, high int, grace time.Duration) Option {
	return func(c *Config) error {
		c.UseConnMgr = true
		c.ConnMgr = connmgrimpl.Config{LowWater: low, HighWater: high, GracePeriod: grace}
		return nil
	}
}

// ConnGater turns on peer/IP/subnet blocklisting, backed by store (pass
// datastore.NewMapDatastore() for an ephemeral blocklist, or a persistent
// ipfs/go-datastore implementation to survive restarts).
func ConnGater(store ds.Datastore) Option {
	return func(c *Config) error {
		c.ConnGaterStore = store
		return nil
	}
}

// ResourceLimits replaces the default scope limit tree.
func ResourceLimits(l rcmgr.LimitConfig) Option {
	return func(c *Config) error {
		c.ResourceLimits = l
		return nil
	}
}

// EnableIdentify turns on the identify protocol collaborator, attaching it
// to the host's stream muxer and event bus.
func EnableIdentify() Option {
	return func(c *Config) error {
		c.EnableIdentify = true
		return nil
	}
}

// UserAgent overrides the agent version string identify reports.
func UserAgent(ua string) Option {
	return func(c *Config) error {
		c.UserAgent = ua
		return nil
	}
}

// DisableSignedPeerRecords stops identify from attaching or consuming
// signed PeerRecord envelopes.
func DisableSignedPeerRecords() Option {
	return func(c *Config) error {
		c.DisableSignedRecords = true
		return nil
	}
}

// EnableNATServiceTracker turns on the background reachability/NAT-behavior
// tracker, probing the given STUN servers on probeInterval (0 keeps the
// default).
func EnableNATServiceTracker(stunServers []string, probeInterval time.Duration) Option {
	return func(c *Config) error {
		c.EnableNATTracker = true
		c.STUNServers = stunServers
		if probeInterval > 0 {
			c.NATProbeInterval = probeInterval
		}
		return nil
	}
}

// EnableMDNSDiscovery turns on LAN peer discovery, advertising/browsing
// serviceName (empty keeps the default _p2p._udp) and gating rediscovered
// peers' dials behind a backoff cache of the given size (<=0 keeps the
// default).
func EnableMDNSDiscovery(serviceName string, cacheSize int) Option {
	return func(c *Config) error {
		c.EnableMDNS = true
		if serviceName != "" {
			c.MDNSServiceName = serviceName
		}
		if cacheSize > 0 {
			c.DiscoveryCacheLen = cacheSize
		}
		return nil
	}
}

// EnableMetrics registers the host's Prometheus collectors against the
// default registry.
func EnableMetrics() Option {
	return func(c *Config) error {
		c.EnableMetrics = true
		return nil
	}
}
