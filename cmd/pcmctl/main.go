// ABOUTME: Command-line remote for a running pcmstream player
// ABOUTME: Starts, stops, inspects or watches a player over its control channel
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mch25/pcmstream/internal/client"
	"github.com/mch25/pcmstream/pkg/pcmstream"
)

var (
	serverAddr = flag.String("server", "localhost:8927", "Player control address")
	timeout    = flag.Duration("timeout", 5*time.Second, "Request timeout")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: pcmctl [flags] start <url> | stop | status | watch\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	log.SetFlags(log.Ltime)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	c := client.NewClient(client.Config{ServerAddr: *serverAddr, HandshakeTimeout: *timeout})
	if err := c.Connect(); err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		st  pcmstream.Status
		err error
	)

	switch args[0] {
	case "start":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		st, err = c.StartStream(ctx, args[1])
	case "stop":
		st, err = c.StopStream(ctx)
	case "status":
		st, err = c.Status(ctx)
	case "watch":
		watch(c)
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%s failed: %v", args[0], err)
	}
	printJSON(st)
}

// watch prints every status event until interrupted or disconnected
func watch(c *client.Client) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case st := <-c.Events:
			log.Printf("%s/%s rate=%d queue=%d/%d reconnects=%d written=%d",
				st.State, st.Playback, st.NegotiatedRate, st.QueueDepth, st.QueueCapacity,
				st.ReconnectAttempts, st.ChunksWritten)
		case <-c.Done():
			log.Printf("Player disconnected")
			return
		case <-sigChan:
			return
		}
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to print result: %v", err)
	}
}
