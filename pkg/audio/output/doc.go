// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Output/Track interfaces and oto, malgo, portaudio and null backends
// Package output provides audio playback devices.
//
// An Output is a playback device: it reports its native rate and minimum
// buffer size, and opens Tracks. A Track is a streaming sink with a bounded
// internal buffer; Write never blocks and returns how many bytes fit.
//
// Backends:
//   - oto (default): github.com/ebitengine/oto/v3
//   - malgo: miniaudio via github.com/gen2brain/malgo
//   - portaudio: github.com/gordonklaus/portaudio (build with -tags portaudio)
//   - null: discards audio at real-time pace
//
// Example:
//
//	out, err := output.New("oto", output.Config{})
//	track, err := out.Open(output.TrackConfig{Format: audio.Mono16(44100), BufferSize: 88200})
//	err = track.Play()
//	n, err := track.Write(chunk)
package output
