// Package drivelink connects the controller to the drive-by-wire board over
// a serial line. The board streams newline-delimited JSON messages (pose,
// odometry, agents, predicted paths, plans, emergency) and accepts one
// command message per control tick.
package drivelink

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"tailscale.com/tsweb"
)

var (
	// ErrWriteFailed means the port accepted fewer bytes than were sent.
	ErrWriteFailed = errors.New("short write to link")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("link closed")
)

// Link is what the rest of the program needs from a Mux.
type Link interface {
	Subscribe() (string, chan string)
	Unsubscribe(id string)
	Send(line string) error
	Monitor(ctx context.Context) error
	Close() error
	Stats() Stats
	AttachAdminRoutes(mux *http.ServeMux)
}

// Stats counts link traffic.
type Stats struct {
	LinesIn  uint64 `json:"lines_in"`
	LinesOut uint64 `json:"lines_out"`
	Dropped  uint64 `json:"dropped"`
}

// Mux fans lines read from one port out to any number of subscribers and
// serialises writes to it.
type Mux[T Porter] struct {
	port T

	subMu       sync.Mutex
	subscribers map[string]chan string

	sendMu  sync.Mutex
	closing atomic.Bool

	in, out, dropped atomic.Uint64
}

// SubscriberBuffer is the channel capacity given to each subscriber.
// Lines are dropped for a subscriber whose buffer is full.
const SubscriberBuffer = 64

// NewMux wraps port.
func NewMux[T Porter](port T) *Mux[T] {
	return &Mux[T]{port: port, subscribers: make(map[string]chan string)}
}

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns an id and a channel receiving every line read after
// the call. The channel is closed by Unsubscribe or Close.
func (m *Mux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, SubscriberBuffer)
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.closing.Load() {
		close(ch)
		return id, ch
	}
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and forgets the channel for id.
func (m *Mux[T]) Unsubscribe(id string) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Send writes line to the port, appending a newline if missing.
func (m *Mux[T]) Send(line string) error {
	if m.closing.Load() {
		return ErrClosed
	}
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	n, err := io.WriteString(m.port, line)
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	m.out.Add(1)
	return nil
}

// Monitor reads lines until the port reaches EOF, Close is called or ctx
// ends, delivering each line to every subscriber without blocking.
func (m *Mux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)
	scan.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				scanErr <- ctx.Err()
				return
			}
		}
		scanErr <- scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				err := <-scanErr
				if m.closing.Load() {
					return nil
				}
				return err
			}
			m.in.Add(1)
			m.broadcast(line)
		}
	}
}

func (m *Mux[T]) broadcast(line string) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- line:
		default:
			m.dropped.Add(1)
		}
	}
}

// Close closes every subscriber channel and the port.
func (m *Mux[T]) Close() error {
	if m.closing.Swap(true) {
		return nil
	}
	m.subMu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subMu.Unlock()
	return m.port.Close()
}

// Stats returns the traffic counters.
func (m *Mux[T]) Stats() Stats {
	return Stats{LinesIn: m.in.Load(), LinesOut: m.out.Load(), Dropped: m.dropped.Load()}
}

// AttachAdminRoutes adds link debugging endpoints under /debug/.
func (m *Mux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Link lines in", func() any { return m.in.Load() })
	debug.KVFunc("Link lines out", func() any { return m.out.Load() })
	debug.KVFunc("Link lines dropped", func() any { return m.dropped.Load() })

	debug.HandleSilentFunc("link-send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		line := strings.TrimSpace(r.FormValue("line"))
		if line == "" {
			http.Error(w, "Missing line", http.StatusBadRequest)
			return
		}
		if err := m.Send(line); err != nil {
			http.Error(w, "Failed to write line", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote %q to link", line)
	})

	debug.HandleFunc("link-tail", "stream link traffic as server-sent events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, ch := m.Subscribe()
		defer m.Unsubscribe(id)

		io.WriteString(w, ": ping\n\n")
		flusher.Flush()
		for {
			select {
			case line, ok := <-ch:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
