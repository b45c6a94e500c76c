// ABOUTME: Reference PCM stream server
// ABOUTME: Serves an endless WAV-framed 8kHz mono stream paced in real time
package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mch25/pcmstream/internal/discovery"
	"github.com/mch25/pcmstream/pkg/audio"
)

const (
	// StreamPath is where the stream is served
	StreamPath = "/stream.wav"

	// ChunkDuration is the pacing interval
	ChunkDuration = 20 * time.Millisecond

	// BufferAhead is sent immediately so players can start without waiting
	BufferAhead = 500 * time.Millisecond
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool

	// AudioFile is a WAV file to loop; empty plays a 440Hz tone
	AudioFile string
}

// Server streams PCM to any number of HTTP listeners
type Server struct {
	config  Config
	sources SourceFactory
	mux     *http.ServeMux

	httpServer *http.Server
	listener   net.Listener

	mdnsManager *discovery.Manager

	listeners atomic.Int32
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// New creates a server, decoding the audio file up front
func New(config Config) (*Server, error) {
	sources, err := NewSourceFactory(config.AudioFile)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:   config,
		sources:  sources,
		mux:      http.NewServeMux(),
		stopChan: make(chan struct{}),
	}
	s.mux.HandleFunc("GET "+StreamPath, s.handleStream)
	return s, nil
}

// Handler returns the HTTP handler serving the stream
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Listeners returns the number of connected listeners
func (s *Server) Listeners() int {
	return int(s.listeners.Load())
}

// Start serves until Stop is called
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = ln

	port := ln.Addr().(*net.TCPAddr).Port
	log.Printf("Stream server listening on %s%s", ln.Addr(), StreamPath)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        port,
			ServiceType: discovery.SourceService,
			Path:        StreamPath,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return s.stopContext()
		},
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		log.Printf("Server shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		serverErr = err
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop ends Start and every open stream
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// stopContext is cancelled by Stop so open streams end during shutdown
func (s *Server) stopContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-s.stopChan
		cancel()
	}()
	return ctx
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	src, err := s.sources()
	if err != nil {
		log.Printf("Failed to open source: %v", err)
		http.Error(w, "source unavailable", http.StatusInternalServerError)
		return
	}
	defer src.Close()

	n := s.listeners.Add(1)
	defer s.listeners.Add(-1)
	log.Printf("Listener connected from %s (%s), %d active", r.RemoteAddr, src.Name(), n)

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	sent, err := Stream(r.Context(), w, src, ChunkDuration, BufferAhead)
	log.Printf("Listener %s disconnected after %d bytes: %v", r.RemoteAddr, sent, err)
}

// Stream writes a WAV header and then paced PCM until ctx ends or a write
// fails. It returns the number of PCM bytes written.
func Stream(ctx context.Context, w io.Writer, src Source, interval, ahead time.Duration) (int64, error) {
	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	if _, err := w.Write(StreamHeader(audio.SourceSampleRate)); err != nil {
		return 0, err
	}

	chunkSamples := int(int64(audio.SourceSampleRate) * int64(interval) / int64(time.Second))
	samples := make([]int16, chunkSamples)
	buf := make([]byte, chunkSamples*audio.BytesPerSample)

	var sent int64
	writeChunk := func() error {
		n, err := src.Read(samples)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			audio.PutSample(buf, i, samples[i])
		}
		written, err := w.Write(buf[:n*audio.BytesPerSample])
		sent += int64(written)
		return err
	}

	// Prebuffer
	for i := 0; i < int(ahead/interval); i++ {
		if err := writeChunk(); err != nil {
			return sent, err
		}
	}
	flush()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case <-ticker.C:
			if err := writeChunk(); err != nil {
				return sent, err
			}
			flush()
		}
	}
}

// StreamHeader builds a canonical 44-byte WAV header for 16-bit mono PCM.
// Both size fields are 0xFFFFFFFF since the stream has no end.
func StreamHeader(sampleRate int) []byte {
	const unknownSize = 0xFFFFFFFF

	format := audio.Mono16(sampleRate)
	hdr := make([]byte, audio.HeaderSize)

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], unknownSize)
	copy(hdr[8:12], "WAVE")

	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(format.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(format.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(format.BytesPerSecond()))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(format.FrameSize()))
	binary.LittleEndian.PutUint16(hdr[34:36], uint16(format.BitDepth))

	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], unknownSize)

	return hdr
}
