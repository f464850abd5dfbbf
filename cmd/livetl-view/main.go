// Command livetl-view is a terminal subtitle viewer. It connects to a livetl
// broadcast server, prints each subtitle line as it arrives, and reconnects
// with backoff when the connection drops.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

// frame covers every message the server sends plus our outbound pings.
type frame struct {
	Type        string    `json:"type"`
	ClientCount int       `json:"client_count,omitempty"`
	Sequence    uint64    `json:"sequence,omitempty"`
	Original    string    `json:"original,omitempty"`
	Translated  string    `json:"translated,omitempty"`
	EmittedAt   time.Time `json:"emitted_at,omitempty"`
}

func main() {
	url := flag.String("url", "ws://localhost:8765", "broadcast server URL")
	pingInterval := flag.Duration("ping", 30*time.Second, "heartbeat interval")
	showOriginal := flag.Bool("original", false, "print the original line alongside the translation")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	delay := initialReconnectDelay
	for {
		start := time.Now()
		err := watch(ctx, *url, *pingInterval, *showOriginal)
		if time.Since(start) > time.Minute {
			// The session held for a while; treat the drop as fresh.
			delay = initialReconnectDelay
		}
		if ctx.Err() != nil {
			fmt.Println("\nbye")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "livetl-view: connection lost: %v\n", err)
		}

		fmt.Fprintf(os.Stderr, "livetl-view: reconnecting in %s…\n", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			fmt.Println("\nbye")
			return
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// watch runs one connection until it fails or ctx ends. A successful
// session prints subtitles as they arrive and answers with periodic pings.
func watch(ctx context.Context, url string, pingInterval time.Duration, showOriginal bool) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, _, err := websocket.Dial(dialCtx, url, nil)
	cancel()
	if err != nil {
		return err
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	// Ping loop. The server evicts silent clients, so this is load-bearing.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := wsjson.Write(ctx, c, frame{Type: "ping"}); err != nil {
					stop()
					return
				}
			}
		}
	}()
	defer wg.Wait()
	defer stop()

	for {
		var msg frame
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch msg.Type {
		case "welcome":
			fmt.Fprintf(os.Stderr, "livetl-view: connected (%d viewers)\n", msg.ClientCount)
		case "subtitle":
			if showOriginal {
				fmt.Printf("[%s] %s\n        %s\n",
					msg.EmittedAt.Local().Format("15:04:05"), msg.Original, msg.Translated)
			} else {
				fmt.Printf("[%s] %s\n",
					msg.EmittedAt.Local().Format("15:04:05"), msg.Translated)
			}
		case "pong":
			// heartbeat acknowledged
		default:
		}
	}
}
