// ABOUTME: PCM stream player package
// ABOUTME: Session controller and playback writer for network PCM streams
// Package pcmstream plays a raw PCM network stream on a local audio device.
//
// A Player runs one session at a time. Each session owns a bounded chunk
// queue, a stream reader filling it and a playback writer draining it into
// an output track opened at the negotiated rate. Starting a new session
// always tears the previous one down first, and Stop is safe to call at
// any time.
//
// Example:
//
//	player, err := pcmstream.NewPlayer(pcmstream.Config{
//	    OnStateChange: func(s pcmstream.Status) {
//	        log.Printf("%s/%s", s.State, s.Playback)
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer player.Close()
//
//	if err := player.Start("http://192.168.1.20:8080/stream.wav"); err != nil {
//	    log.Fatal(err)
//	}
package pcmstream
