// ABOUTME: mDNS discovery for pcmstream players and stream sources
// ABOUTME: Advertises the control service and browses for PCM sources
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// Service types
const (
	PlayerService = "_pcmstream._tcp"
	SourceService = "_pcmstream-source._tcp"
)

// ErrNoSource is returned when browsing finds nothing before the timeout
var ErrNoSource = errors.New("no stream source found")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int

	// ServiceType is advertised (default: PlayerService)
	ServiceType string

	// Path is published as the path= TXT record (default: /ws)
	Path string

	// BrowseTimeout bounds one browse round (default: 3s)
	BrowseTimeout time.Duration
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	sources chan *Source
}

// Source describes a discovered stream source
type Source struct {
	Name string
	Host string
	Port int
	Path string
}

// URL returns the HTTP address of the source's stream
func (s *Source) URL() string {
	return "http://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) + s.Path
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.ServiceType == "" {
		config.ServiceType = PlayerService
	}
	if config.Path == "" {
		config.Path = "/ws"
	}
	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = 3 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		sources: make(chan *Source, 10),
	}
}

// Advertise publishes this service until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		m.config.ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, m.config.ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for stream sources in the background until Stop
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for m.ctx.Err() == nil {
		m.query(m.ctx, m.sources)
	}
}

// query runs one browse round, delivering sources to out
func (m *Manager) query(ctx context.Context, out chan<- *Source) {
	entries := make(chan *mdns.ServiceEntry, 10)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			src, ok := sourceFromEntry(entry)
			if !ok {
				continue
			}

			log.Printf("Discovered source: %s at %s", src.Name, src.URL())

			select {
			case out <- src:
			case <-ctx.Done():
			}
		}
	}()

	params := &mdns.QueryParam{
		Service:     SourceService,
		Domain:      "local",
		Timeout:     m.config.BrowseTimeout,
		Entries:     entries,
		DisableIPv6: true,
	}

	if err := mdns.Query(params); err != nil {
		log.Printf("mDNS query failed: %v", err)
	}
	close(entries)
	<-done
}

// FindSource browses until the first source appears or timeout elapses
func (m *Manager) FindSource(ctx context.Context, timeout time.Duration) (*Source, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := make(chan *Source, 1)
	go func() {
		for ctx.Err() == nil && m.ctx.Err() == nil {
			m.query(ctx, found)
		}
	}()

	select {
	case src := <-found:
		return src, nil
	case <-ctx.Done():
		return nil, ErrNoSource
	case <-m.ctx.Done():
		return nil, ErrNoSource
	}
}

// Sources returns the channel fed by Browse
func (m *Manager) Sources() <-chan *Source {
	return m.sources
}

// Stop ends advertisement and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// sourceFromEntry converts an mDNS answer, reading the path= TXT record
func sourceFromEntry(entry *mdns.ServiceEntry) (*Source, bool) {
	if entry == nil || entry.AddrV4 == nil || entry.Port == 0 {
		return nil, false
	}

	src := &Source{
		Name: strings.TrimSuffix(entry.Name, "."),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: "/stream.wav",
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok && path != "" {
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			src.Path = path
		}
	}
	return src, true
}

// getLocalIPs returns the IPv4 addresses of interfaces that are up
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
