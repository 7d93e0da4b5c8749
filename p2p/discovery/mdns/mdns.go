// Package mdns advertises and discovers peers on the local network per
// spec.md §4.16, wrapping github.com/libp2p/zeroconf/v2 exactly as upstream
// does: announce a `_p2p._udp.local` service carrying one `dnsaddr=<addr>`
// TXT entry per listen address (each already suffixed with /p2p/<peer-id>),
// and browse for the same service to learn about peers doing the same.
package mdns

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/host"
	"github.com/student-p2p/swarmkit/core/peer"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/zeroconf/v2"
	ma "github.com/multiformats/go-multiaddr"
)

var log = logging.Logger("mdns")

// ServiceName is the RFC 6763 service type mDNS peer discovery advertises
// and browses under; each host registers its peer ID as the instance name.
const ServiceName = "_p2p._udp"

const mdnsDomain = "local"

const dnsaddrPrefix = "dnsaddr="

// DefaultPort is the SRV record port advertised when none of the host's
// listen addresses carry a /tcp or /udp component. The actual dial
// addresses travel in the TXT records; this only needs to be a value
// other implementations' mDNS stacks accept.
const DefaultPort = 4001

// pollInterval is how often Browse is re-invoked to refresh the local
// network view; zeroconf.Browse's underlying query is one-shot-ish over
// its context, not a standing subscription, so this package re-queries
// periodically rather than once.
const pollInterval = 10 * time.Second

// Notifee is notified of every peer discovered over mDNS, per spec.md
// §4.16 ("notifies subscribers"); self-discoveries are suppressed before
// reaching it.
type Notifee interface {
	HandlePeerFound(peer.AddrInfo)
}

// Service advertises the local host over mDNS and browses for others
// advertising the same service name.
type Service struct {
	host        host.Host
	serviceName string
	notifee     Notifee

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	server *zeroconf.Server
}

// NewService constructs an mDNS service for h. serviceName defaults to
// ServiceName if empty, allowing callers to namespace discovery away from
// other libp2p networks on the same LAN.
func NewService(h host.Host, serviceName string, notifee Notifee) *Service {
	if serviceName == "" {
		serviceName = ServiceName
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		host:        h,
		serviceName: serviceName,
		notifee:     notifee,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start registers the mDNS advertisement and begins the background browse
// loop. Safe to call once; call Close to stop both.
func (s *Service) Start() error {
	if err := s.startServer(); err != nil {
		return err
	}
	s.wg.Add(1)
	go s.browseLoop()
	return nil
}

func (s *Service) startServer() error {
	txt, port := s.buildTXTRecords()
	server, err := zeroconf.Register(
		s.host.ID().String(),
		s.serviceName,
		mdnsDomain,
		port,
		txt,
		nil,
	)
	if err != nil {
		return err
	}
	s.server = server
	return nil
}

// buildTXTRecords renders one "dnsaddr=" TXT entry per advertised listen
// address, each already carrying a /p2p/<peer-id> suffix, and picks an SRV
// port from the first address that has a /tcp or /udp component.
func (s *Service) buildTXTRecords() ([]string, int) {
	self := peer.AddrInfo{ID: s.host.ID(), Addrs: s.host.Addrs()}
	p2pAddrs, err := self.P2pAddrs()
	if err != nil {
		log.Debugw("failed to render p2p addrs for mdns advertisement", "err", err)
		return nil, DefaultPort
	}

	port := DefaultPort
	portSet := false
	txt := make([]string, 0, len(p2pAddrs))
	for _, a := range p2pAddrs {
		txt = append(txt, dnsaddrPrefix+a.String())
		if portSet {
			continue
		}
		if p, err := portOf(a); err == nil {
			port = p
			portSet = true
		}
	}
	return txt, port
}

func portOf(a ma.Multiaddr) (int, error) {
	if v, err := a.ValueForProtocol(ma.P_TCP); err == nil {
		return strconv.Atoi(v)
	}
	if v, err := a.ValueForProtocol(ma.P_UDP); err == nil {
		return strconv.Atoi(v)
	}
	return 0, ma.ErrProtocolNotFound
}

func (s *Service) browseLoop() {
	defer s.wg.Done()
	s.browseOnce()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.browseOnce()
		}
	}
}

func (s *Service) browseOnce() {
	entries := make(chan *zeroconf.ServiceEntry, 16)

	ctx, cancel := context.WithTimeout(s.ctx, pollInterval)
	defer cancel()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for entry := range entries {
			s.handleEntry(entry)
		}
	}()

	if err := zeroconf.Browse(ctx, s.serviceName, mdnsDomain, entries); err != nil {
		log.Debugw("mdns browse failed", "err", err)
	}
}

func (s *Service) handleEntry(entry *zeroconf.ServiceEntry) {
	var addrs []ma.Multiaddr
	for _, t := range entry.Text {
		if !hasPrefix(t, dnsaddrPrefix) {
			continue
		}
		m, err := ma.NewMultiaddr(t[len(dnsaddrPrefix):])
		if err != nil {
			log.Debugw("skipping unparseable dnsaddr TXT entry", "value", t, "err", err)
			continue
		}
		addrs = append(addrs, m)
	}
	if len(addrs) == 0 {
		return
	}

	infos, err := peer.AddrInfosFromP2pAddrs(addrs...)
	if err != nil {
		log.Debugw("failed to group mdns dnsaddrs by peer", "err", err)
		return
	}

	for _, info := range infos {
		if info.ID == s.host.ID() {
			continue // suppress self-discovery
		}
		if s.notifee != nil {
			s.notifee.HandlePeerFound(info)
		}
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Close stops the browse loop and unregisters the mDNS advertisement.
// Idempotent.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		if s.server != nil {
			s.server.Shutdown()
		}
	})
	return nil
}
