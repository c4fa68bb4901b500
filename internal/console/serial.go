// Package console connects a host to the protocol core: a line console
// over any byte stream, and a remote console over WebSocket.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agsys/lowapp/internal/atcmd"
	"github.com/agsys/lowapp/internal/engine"
)

// Submitter accepts AT command lines for the core
type Submitter interface {
	SubmitAT(line string) error
	SubmitATError() error
}

// Serial reads CR/LF terminated command lines from in and writes every
// response to out followed by CRLF
type Serial struct {
	in   io.Reader
	core Submitter
	log  zerolog.Logger

	mu  sync.Mutex
	out io.Writer
}

// NewSerial creates a line console
func NewSerial(in io.Reader, out io.Writer, core Submitter, log zerolog.Logger) *Serial {
	return &Serial{
		in:   in,
		out:  out,
		core: core,
		log:  log.With().Str("component", "console").Logger(),
	}
}

// Write sends a response line. Safe for concurrent use.
func (s *Serial) Write(resp string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.out, "%s\r\n", resp); err != nil {
		s.log.Warn().Err(err).Msg("Console write failed")
	}
}

// Run feeds lines to the core until in is exhausted or ctx is done. A line
// longer than the command buffer is discarded and reported to the core.
func (s *Serial) Run(ctx context.Context) error {
	r := bufio.NewReaderSize(s.in, atcmd.MaxLineLength+2)
	overflow := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read console: %w", err)
		}

		if isPrefix {
			overflow = true
			continue
		}
		if overflow {
			overflow = false
			s.log.Warn().Msg("Command line too long, discarded")
			s.submit(s.core.SubmitATError())
			continue
		}

		line := strings.TrimRight(string(chunk), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.submit(s.core.SubmitAT(line))
	}
}

func (s *Serial) submit(err error) {
	if err != nil {
		s.log.Error().Err(err).Msg("Command dropped")
		s.Write(engine.FormatError(engine.CodeQueueFull, "AT queue full"))
	}
}
