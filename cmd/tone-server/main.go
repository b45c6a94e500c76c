// ABOUTME: Entry point for the reference PCM stream server
// ABOUTME: Streams a test tone or a looped WAV file over HTTP
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mch25/pcmstream/internal/server"
)

var (
	port      = flag.Int("port", 8080, "HTTP server port")
	name      = flag.String("name", "", "Source friendly name (default: hostname-pcmstream-source)")
	logFile   = flag.String("log-file", "tone-server.log", "Log file path")
	noMDNS    = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	audioFile = flag.String("audio", "", "WAV or MP3 file to loop. If not specified, plays a 440Hz tone")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(os.Stdout, f))

	sourceName := *name
	if sourceName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		sourceName = fmt.Sprintf("%s-pcmstream-source", hostname)
	}

	log.Printf("Starting stream server: %s on port %d", sourceName, *port)
	log.Printf("Press Ctrl-C to stop")

	srv, err := server.New(server.Config{
		Port:       *port,
		Name:       sourceName,
		EnableMDNS: !*noMDNS,
		AudioFile:  *audioFile,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}
