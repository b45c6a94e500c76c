// ABOUTME: Container header inspection
// ABOUTME: Logs the format a WAV header declares without relying on it
package stream

import (
	"bytes"
	"log"

	"github.com/go-audio/wav"
)

// inspectHeader decodes a discarded header for diagnostics only.
// Streaming servers write placeholder sizes, so nothing here is trusted.
func inspectHeader(hdr []byte, sourceRate int) {
	dec := wav.NewDecoder(bytes.NewReader(hdr))
	if !dec.IsValidFile() {
		log.Printf("Stream header is not a recognizable WAV header (%v), assuming %dHz mono 16-bit",
			dec.Err(), sourceRate)
		return
	}

	log.Printf("Stream header declares %dHz, %d channel(s), %d-bit",
		dec.SampleRate, dec.NumChans, dec.BitDepth)

	if int(dec.SampleRate) != sourceRate || dec.NumChans != 1 || dec.BitDepth != 16 {
		log.Printf("Stream header does not match expected %dHz mono 16-bit, decoding as expected format", sourceRate)
	}
}
