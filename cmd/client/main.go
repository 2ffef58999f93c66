// Command client connects a terminal to a rigshare relay endpoint.
// Inbound frames are printed to stdout one per line; stdin lines are
// sent to the relay as-is, so a sharer or controller can be driven by
// piping JSON batch arrays through it.
package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rigshare/rigshare/internal/wire"
)

func main() {
	switch cfg.Role {
	case "sharer", "controller", "status":
	default:
		log.Fatalf("unknown role %q", cfg.Role)
	}
	if cfg.Secret == "" {
		log.Fatal("no secret: pass -secret or set the role's environment variable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := make(chan []byte, 16)
	go readStdin(lines)

	log.Printf("rigshare client starting role=%s server=%s", cfg.Role, cfg.Server)
	for {
		if err := runOnce(ctx, lines); err != nil {
			log.Printf("session ended: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.Retry):
		}
		log.Printf("reconnecting...")
	}
}

// readStdin pumps stdin lines into out and closes it on EOF. A single
// pump outlives reconnects so no input line is ever read twice.
func readStdin(out chan<- []byte) {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		out <- cp
	}
	close(out)
}

func runOnce(ctx context.Context, lines <-chan []byte) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, cfg.endpoint(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial rejected: %s", resp.Status)
		}
		return err
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(cfg.Secret)); err != nil {
		return err
	}
	_, ack, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if !bytes.Equal(ack, wire.AckOK) {
		return fmt.Errorf("unexpected handshake reply: %q", ack)
	}
	log.Printf("authenticated role=%s", cfg.Role)

	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			fmt.Println(string(msg))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-readErr:
			return err
		case line, ok := <-lines:
			if !ok {
				// stdin is done; stay connected for inbound traffic
				lines = nil
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
				return err
			}
		}
	}
}
