package drivelink

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// Porter is the minimal interface needed for a serial port.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// PipePort is an in-memory Porter. Lines fed with Feed are read by the
// link; everything the link writes is captured and can be read back with
// Written or streamed with Lines.
type PipePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written []byte
	closed  bool
	lines   chan string
	partial []byte
}

// NewPipePort returns an open PipePort.
func NewPipePort() *PipePort {
	r, w := io.Pipe()
	return &PipePort{r: r, w: w, lines: make(chan string, 256)}
}

func (p *PipePort) Read(b []byte) (int, error) { return p.r.Read(b) }

// Write captures b. Complete lines are also delivered on Lines; if that
// buffer is full they are dropped from the stream but kept in Written.
func (p *PipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("pipe port closed")
	}
	p.written = append(p.written, b...)
	p.partial = append(p.partial, b...)
	for {
		i := bytes.IndexByte(p.partial, '\n')
		if i < 0 {
			break
		}
		select {
		case p.lines <- string(p.partial[:i]):
		default:
		}
		p.partial = p.partial[i+1:]
	}
	return len(b), nil
}

// Close ends the read side with io.EOF.
func (p *PipePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.lines)
	return p.w.Close()
}

// Feed writes line, newline-terminated, to the read side. It blocks until
// the link reads it.
func (p *PipePort) Feed(line string) error {
	_, err := io.WriteString(p.w, line+"\n")
	return err
}

// Written returns everything written so far.
func (p *PipePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written...)
}

// Lines streams written lines without their trailing newline.
func (p *PipePort) Lines() <-chan string { return p.lines }
