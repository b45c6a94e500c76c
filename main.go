// ABOUTME: Entry point for the pcmstream player
// ABOUTME: Loads configuration, wires the player, control API, mDNS and TUI
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mch25/pcmstream/internal/config"
	"github.com/mch25/pcmstream/internal/control"
	"github.com/mch25/pcmstream/internal/discovery"
	"github.com/mch25/pcmstream/internal/ui"
	"github.com/mch25/pcmstream/internal/version"
	"github.com/mch25/pcmstream/pkg/audio/output"
	"github.com/mch25/pcmstream/pkg/pcmstream"
	"github.com/mch25/pcmstream/pkg/stream"
)

var (
	configFile = flag.String("config", "", "YAML configuration file")
	streamURL  = flag.String("url", "", "Stream URL (skips mDNS source discovery)")
	backend    = flag.String("backend", "", "Audio backend: oto, malgo, portaudio or null")
	controlAdr = flag.String("addr", "", "Control API listen address")
	name       = flag.String("name", "", "Player friendly name (default: hostname-pcmstream)")
	logFile    = flag.String("log-file", "", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement and discovery")
	noControl  = flag.Bool("no-control", false, "Disable the control API")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logging
	f, err := os.OpenFile(cfg.Log.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if cfg.Log.TUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	playerName := cfg.Discovery.Name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-pcmstream", hostname)
	}

	log.Printf("Starting %s %s: %s (backend: %s)", version.Product, version.Version, playerName, cfg.Playback.Backend)

	out, err := output.New(cfg.Playback.Backend, output.Config{NativeRate: cfg.Playback.NativeRate})
	if err != nil {
		log.Fatalf("Failed to create audio output: %v", err)
	}

	var ctrlServer *control.Server

	player, err := pcmstream.NewPlayer(pcmstream.Config{
		Output:             out,
		QueueCapacity:      cfg.Playback.QueueCapacity,
		MinBufferedChunks:  cfg.Playback.MinBufferedChunks,
		BufferPollInterval: cfg.Playback.BufferPollInterval,
		BufferPollAttempts: cfg.Playback.BufferPollAttempts,
		ResampleMode:       cfg.Playback.ResampleMode,
		Stream: stream.Config{
			ConnectTimeout: cfg.Stream.ConnectTimeout,
			ReadTimeout:    cfg.Stream.ReadTimeout,
			Backoff:        cfg.Stream.Backoff(),
		},
		OnStateChange: func(st pcmstream.Status) {
			log.Printf("State: %s, playback: %s", st.State, st.Playback)
			if ctrlServer != nil {
				ctrlServer.Broadcast(st)
			}
		},
		OnError: func(err error) {
			log.Printf("Player error: %v", err)
		},
	})
	if err != nil {
		log.Fatalf("Failed to create player: %v", err)
	}

	if cfg.Control.Enabled {
		ctrlServer = control.New(control.Config{Addr: cfg.Control.Addr}, player)
		if err := ctrlServer.Start(); err != nil {
			log.Fatalf("Failed to start control server: %v", err)
		}
	}

	var disc *discovery.Manager
	if cfg.Discovery.Enabled {
		disc = discovery.NewManager(discovery.Config{
			ServiceName: playerName,
			Port:        controlPort(ctrlServer),
		})
		if ctrlServer != nil {
			if err := disc.Advertise(); err != nil {
				log.Printf("Failed to start mDNS advertisement: %v", err)
			}
		}
	}

	url := cfg.Stream.URL
	if url == "" && disc != nil {
		log.Printf("Starting source discovery...")
		src, err := disc.FindSource(context.Background(), cfg.Discovery.BrowseTimeout)
		if err != nil {
			log.Printf("No source discovered after %v, waiting for control requests", cfg.Discovery.BrowseTimeout)
		} else {
			url = src.URL()
			log.Printf("Discovered source %s at %s", src.Name, url)
		}
	}

	// Keep browsing until a source turns up or the control API starts a stream
	var sources <-chan *discovery.Source
	if url != "" {
		if err := player.Start(url); err != nil {
			log.Printf("Failed to start stream: %v", err)
		}
	} else if disc != nil {
		disc.Browse()
		sources = disc.Sources()
	}

	// TUI setup
	var controls *ui.Controls
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Log.TUI {
		controls = ui.NewControls()
		prog := ui.Run(playerName, controls)
		go func() {
			if _, err := prog.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
		go ui.Feed(ctx, prog, player.Status, 500*time.Millisecond)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var commands chan ui.Command
	if controls != nil {
		commands = controls.Commands
	}

loop:
	for {
		select {
		case cmd := <-commands:
			switch cmd {
			case ui.CommandStop:
				player.Stop()
			case ui.CommandRestart:
				if u := player.Status().URL; u != "" {
					url = u
				}
				if url == "" {
					log.Printf("Nothing to restart, no stream URL known")
					continue
				}
				if err := player.Start(url); err != nil {
					log.Printf("Failed to restart stream: %v", err)
				}
			case ui.CommandQuit:
				log.Printf("Received quit signal from TUI")
				break loop
			}
		case src := <-sources:
			sources = nil
			if player.Status().State != pcmstream.StateIdle {
				continue
			}
			url = src.URL()
			log.Printf("Discovered source %s at %s", src.Name, url)
			if err := player.Start(url); err != nil {
				log.Printf("Failed to start stream: %v", err)
			}
		case <-sigChan:
			log.Printf("Shutdown signal received")
			break loop
		}
	}

	cancel()

	if err := player.Close(); err != nil {
		log.Printf("Error closing player: %v", err)
	}

	if ctrlServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := ctrlServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Control server shutdown error: %v", err)
		}
		shutdownCancel()
	}

	if disc != nil {
		disc.Stop()
	}

	log.Printf("Player stopped")
}

// loadConfig reads the config file, then applies any flags that were set
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.Stream.URL = *streamURL
		case "backend":
			cfg.Playback.Backend = *backend
		case "addr":
			cfg.Control.Addr = *controlAdr
		case "name":
			cfg.Discovery.Name = *name
		case "log-file":
			cfg.Log.File = *logFile
		case "no-tui":
			cfg.Log.TUI = !*noTUI
		case "no-mdns":
			cfg.Discovery.Enabled = !*noMDNS
		case "no-control":
			cfg.Control.Enabled = !*noControl
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// controlPort is the port advertised over mDNS
func controlPort(s *control.Server) int {
	if s == nil || s.Addr() == nil {
		return 0
	}
	_, port, err := net.SplitHostPort(s.Addr().String())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}
