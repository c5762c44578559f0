// Package monitor pumps a worker's output streams into its room's queue
// and derives the room variables from the stdout protocol.
package monitor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dkeye/dialin/internal/app"
	"github.com/dkeye/dialin/internal/core"
	"github.com/dkeye/dialin/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"
)

// MaxLineBytes bounds one buffered output line. Longer lines are dropped
// and replaced by a notice.
const MaxLineBytes = 64 * 1024

var oversizeNotice = fmt.Sprintf("[line dropped: longer than %d bytes]", MaxLineBytes)

type Monitor struct {
	Registry *app.Registry
}

func New(reg *app.Registry) *Monitor {
	return &Monitor{Registry: reg}
}

// Run reads both output streams of the session's worker until they end,
// then reaps the worker and removes the room. It always tears down.
func (m *Monitor) Run(sess *app.Session) {
	logger := log.With().
		Str("module", "monitor").
		Str("room", string(sess.RoomURL)).
		Str("call_id", sess.CallID).
		Int("pid", sess.Process.Pid()).
		Logger()
	defer m.teardown(sess, &logger)

	q, ok := m.Registry.Queue(sess.RoomURL)
	if !ok {
		logger.Warn().Msg("no queue for session, skipping monitor")
		return
	}

	logger.Info().Msg("monitor started")

	var g errgroup.Group
	g.Go(m.guard(sess, "stdout", func() error {
		return readLines(sess.Process.Stdout(), func(line string) {
			m.handleStdout(sess.RoomURL, q, line, &logger)
		})
	}))
	g.Go(m.guard(sess, "stderr", func() error {
		return readLines(sess.Process.Stderr(), func(line string) {
			q.Push(stderrPrefix + line)
		})
	}))

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("error monitoring process")
	}
}

// guard contains failures of one reader: a read error or panic kills the
// worker so the sibling reader reaches EOF too.
func (m *Monitor) guard(sess *app.Session, stream string, read func() error) func() error {
	return func() error {
		var pc panics.Catcher
		var err error
		pc.Try(func() { err = read() })
		if r := pc.Recovered(); r != nil {
			err = r.AsError()
		}
		if err == nil {
			return nil
		}
		_ = sess.Process.Kill()
		return fmt.Errorf("%w: %s: %w", domain.ErrStream, stream, err)
	}
}

func (m *Monitor) handleStdout(room domain.RoomURL, q *core.OutputQueue, raw string, logger *zerolog.Logger) {
	line := ParseLine(raw)
	switch line.Kind {
	case LineTranscript:
		m.Registry.SetVariable(room, domain.TranscriptVar, line.Value)
		logger.Debug().Int("len", len(line.Value)).Msg("transcript updated")
	case LineVariable:
		if line.Name == domain.TranscriptVar {
			logger.Warn().Msg("ignoring variable update for reserved transcript key")
			break
		}
		m.Registry.SetVariable(room, line.Name, line.Value)
		logger.Debug().Str("variable", line.Name).Msg("variable updated")
	}
	q.Push(line.QueueLines()...)
}

func (m *Monitor) teardown(sess *app.Session, logger *zerolog.Logger) {
	if err := sess.Process.Wait(); err != nil {
		logger.Info().Err(err).Msg("worker exited")
	} else {
		logger.Info().Msg("worker exited cleanly")
	}
	m.Registry.Remove(sess.RoomURL)
}

// readLines calls fn for every line of r with surrounding whitespace
// trimmed. A final line without newline is still delivered.
func readLines(r io.Reader, fn func(string)) error {
	br := bufio.NewReaderSize(r, MaxLineBytes)
	for {
		chunk, err := br.ReadSlice('\n')
		line := string(chunk)
		if errors.Is(err, bufio.ErrBufferFull) {
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = br.ReadSlice('\n')
			}
			line = oversizeNotice
		}
		if len(line) > 0 {
			fn(strings.TrimSpace(line))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
