// Package discovery advertises the doorbell HTTP API over mDNS.
package discovery

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/enbility/zeroconf/v3"
	log "github.com/sirupsen/logrus"
)

// Service type and domain of the advertisement.
const (
	ServiceType     = "_http._tcp"
	Domain          = "local."
	DefaultInstance = "Doorbell"
	// MaxInstanceNameLen is the DNS-SD limit for an instance label.
	MaxInstanceNameLen = 63
)

// Config describes what to advertise.
type Config struct {
	Instance string
	Port     int
	// Interface restricts the advertisement to one interface; empty means all.
	Interface string
	TXT       map[string]string
}

// registerFunc matches zeroconf.Register.
type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface, opts ...zeroconf.ServerOption) (*zeroconf.Server, error)

// Advertiser owns one registered mDNS service.
type Advertiser struct {
	cfg      Config
	register registerFunc

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser; nothing is announced until Start.
func NewAdvertiser(cfg Config) *Advertiser {
	if cfg.Instance == "" {
		cfg.Instance = DefaultInstance
	}
	if len(cfg.Instance) > MaxInstanceNameLen {
		cfg.Instance = cfg.Instance[:MaxInstanceNameLen]
	}
	return &Advertiser{cfg: cfg, register: zeroconf.Register}
}

// Start registers the service, replacing any previous registration.
func (a *Advertiser) Start() error {
	if a.cfg.Port <= 0 || a.cfg.Port > 65535 {
		return fmt.Errorf("mdns: invalid port %d", a.cfg.Port)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := a.register(a.cfg.Instance, ServiceType, Domain, a.cfg.Port, TXTStrings(a.cfg.TXT), a.interfaces())
	if err != nil {
		return fmt.Errorf("mdns: register %q: %w", a.cfg.Instance, err)
	}
	a.server = server

	log.WithFields(log.Fields{
		"instance": a.cfg.Instance,
		"service":  ServiceType,
		"port":     a.cfg.Port,
	}).Info("mdns: advertising")
	return nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

func (a *Advertiser) interfaces() []net.Interface {
	if a.cfg.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.cfg.Interface)
	if err != nil {
		log.WithError(err).WithField("interface", a.cfg.Interface).Warn("mdns: unknown interface, using all")
		return nil
	}
	return []net.Interface{*iface}
}

// TXTStrings encodes records as sorted key=value strings.
func TXTStrings(records map[string]string) []string {
	out := make([]string, 0, len(records))
	for k, v := range records {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// PortFromAddr extracts the port of a listen address such as ":8080".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("parse listen address %q: invalid port", addr)
	}
	return port, nil
}
