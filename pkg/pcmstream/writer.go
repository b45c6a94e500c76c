// ABOUTME: Playback writer draining the chunk queue into an output track
// ABOUTME: Handles initial buffering, device setup and flow-controlled writes
package pcmstream

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/mch25/pcmstream/pkg/audio"
	"github.com/mch25/pcmstream/pkg/audio/output"
)

// errSuperseded means the session released its device while a track was opening
var errSuperseded = errors.New("session released during device init")

// runWriter is one playback attempt. It returns without playing when
// buffering times out or the device fails, leaving the session running so a
// later depth event can launch a new attempt.
func (p *Player) runWriter(s *session) {
	defer s.wg.Done()
	defer s.writerActive.Store(false)

	p.setPlayback(s, PlaybackBuffering)

	if !p.awaitBuffer(s) {
		log.Printf("Playback aborted - %d chunks buffered after waiting", s.queue.Len())
		s.playbackStarted.Store(false)
		p.setPlayback(s, PlaybackNotStarted)
		return
	}

	s.playbackStarted.Store(true)
	log.Printf("Initial buffering complete, %d chunks ready", s.queue.Len())

	track, err := p.openTrack(s)
	if err != nil {
		if !errors.Is(err, errSuperseded) {
			s.retryAt.Store(time.Now().Add(p.config.RelaunchDelay).UnixNano())
		}
		s.playbackStarted.Store(false)
		p.setPlayback(s, PlaybackNotStarted)
		if errors.Is(err, errSuperseded) {
			return
		}
		log.Printf("Playback attempt failed: %v", err)
		msg := err.Error()
		s.lastErr.Store(&msg)
		p.reportError(s, err)
		return
	}

	p.setPlayback(s, PlaybackPlaying)
	p.drain(s, track)
}

// awaitBuffer polls until the queue reaches the minimum depth
func (p *Player) awaitBuffer(s *session) bool {
	for i := 0; i < p.config.BufferPollAttempts; i++ {
		if !s.running.Load() {
			return false
		}
		if s.queue.Len() >= p.config.MinBufferedChunks {
			return true
		}
		if !sleep(s.ctx, p.config.BufferPollInterval) {
			return false
		}
	}
	return s.running.Load() && s.queue.Len() >= p.config.MinBufferedChunks
}

// openTrack opens, primes and starts a track at the session rate.
// On error nothing is left open.
func (p *Player) openTrack(s *session) (output.Track, error) {
	out := p.config.Output
	rate := int(s.rate.Load())
	format := audio.Mono16(rate)

	minSize, err := out.MinBufferSize(format)
	if err != nil {
		return nil, &DeviceInitError{SampleRate: rate, Err: err}
	}

	// Oversize generously, favoring smooth playback over latency
	bufferSize := max(minSize*4, rate*audio.BytesPerSample)
	log.Printf("Initializing audio track: %dHz, buffer: %d bytes (min: %d)", rate, bufferSize, minSize)

	track, err := out.Open(output.TrackConfig{
		Format:     format,
		BufferSize: bufferSize,
		LowLatency: true,
	})
	if err != nil {
		return nil, &DeviceInitError{SampleRate: rate, Err: err}
	}

	if !s.setTrack(track) {
		if err := track.Release(); err != nil {
			log.Printf("Error releasing superseded audio track: %v", err)
		}
		return nil, errSuperseded
	}

	if err := track.SetVolume(1.0); err != nil {
		log.Printf("Failed to set track volume: %v", err)
	}
	if err := track.Flush(); err != nil {
		log.Printf("Failed to flush track: %v", err)
	}
	if err := track.Play(); err != nil {
		s.dropTrack(track)
		return nil, &DeviceInitError{SampleRate: rate, Err: err}
	}

	state := track.PlayState()
	log.Printf("Playback started, playState=%s", state)
	if state != output.PlayStatePlaying {
		s.dropTrack(track)
		return nil, &DeviceInitError{SampleRate: rate, Err: ErrNotPlaying}
	}

	return track, nil
}

// drain moves chunks from the queue to the track until the session stops
func (p *Player) drain(s *session, track output.Track) {
	var chunks, written int64
	start := time.Now()

	for s.running.Load() {
		chunk, ok := s.queue.TryDequeue()
		if !ok {
			if !sleep(s.ctx, p.config.IdleWait) {
				break
			}
			continue
		}

		n, err := p.writeChunk(s, track, chunk)
		written += int64(n)
		if err != nil {
			s.writeErrors.Add(1)
			log.Printf("Write error, chunk dropped: %v", err)
			continue
		}
		if n < len(chunk) {
			// Stopped mid-chunk
			break
		}

		chunks++
		s.chunksWritten.Add(1)

		if chunks%100 == 0 {
			elapsed := time.Since(start).Seconds()
			kbps := 0
			if elapsed > 0 {
				kbps = int(float64(written*8) / elapsed / 1000)
			}
			log.Printf("Playing: %dKB, queue: %d, bitrate: %dkbps", written/1024, s.queue.Len(), kbps)
		}
	}

	log.Printf("Playback ended, total written: %dKB", written/1024)
}

// writeChunk writes a whole chunk with non-blocking writes, waiting while
// the device buffer is full. It returns the bytes accepted.
func (p *Player) writeChunk(s *session, track output.Track, chunk audio.Chunk) (int, error) {
	offset := 0
	for offset < len(chunk) && s.running.Load() {
		n, err := track.Write(chunk[offset:])
		if err != nil {
			return offset, &WriteError{Err: err}
		}
		if n == 0 {
			if !sleep(s.ctx, p.config.DeviceFullWait) {
				break
			}
			continue
		}
		offset += n
		s.bytesWritten.Add(int64(n))
	}
	return offset, nil
}

// sleep waits for d or until ctx is done, reporting whether the wait completed
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
