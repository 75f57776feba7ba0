// Package resultlog appends grid maximisation results to a CSV file. One
// goroutine owns the file; producers hand rows over a channel.
package resultlog

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"sync"

	"goexact/internal/errors"

	"go.uber.org/zap"
)

var header = []string{"run_id", "n", "n1", "x", "a", "p_value", "pi", "evaluated", "failed"}

// Row is one appended result.
type Row struct {
	RunID     string
	N, N1     int
	X, A      int
	PValue    float64
	Pi        float64
	Evaluated int
	Failed    int
}

func (r Row) record() []string {
	return []string{
		r.RunID,
		strconv.Itoa(r.N), strconv.Itoa(r.N1),
		strconv.Itoa(r.X), strconv.Itoa(r.A),
		strconv.FormatFloat(r.PValue, 'e', -1, 64),
		strconv.FormatFloat(r.Pi, 'g', -1, 64),
		strconv.Itoa(r.Evaluated), strconv.Itoa(r.Failed),
	}
}

// Appender serialises writes to one results file.
type Appender struct {
	rows   chan Row
	done   chan struct{}
	closer io.Closer
	w      *csv.Writer
	logger *zap.Logger

	mu     sync.Mutex
	closed bool

	// errMu is separate from mu: Append may block on a full channel while
	// holding mu, and the writer goroutine must still record its error.
	errMu sync.Mutex
	err   error
}

// Open creates or appends to path, writing the header when the file is new,
// and starts the writer goroutine.
func Open(path string, logger *zap.Logger) (*Appender, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrapf(err, "open results file %s", path))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat results file %s", path)
	}
	a := newAppender(f, f, logger)
	if info.Size() == 0 {
		a.write(header)
	}
	go a.run()
	return a, nil
}

func newAppender(w io.Writer, closer io.Closer, logger *zap.Logger) *Appender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Appender{
		rows:   make(chan Row, 64),
		done:   make(chan struct{}),
		closer: closer,
		w:      csv.NewWriter(w),
		logger: logger,
	}
}

// Append queues a row. It returns an error once the appender is closed or an
// earlier write has failed; rows queued after a failure are never written.
func (a *Appender) Append(row Row) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.InternalError("results appender is closed")
	}
	if err := a.loadErr(); err != nil {
		return errors.Wrap(err, "results file write failed")
	}
	a.rows <- row
	return nil
}

// Close drains queued rows, closes the file and returns the first write
// error, if any.
func (a *Appender) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return a.loadErr()
	}
	a.closed = true
	close(a.rows)
	a.mu.Unlock()

	<-a.done
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			a.setErr(err)
		}
	}
	return a.loadErr()
}

func (a *Appender) run() {
	defer close(a.done)
	for row := range a.rows {
		a.write(row.record())
	}
}

func (a *Appender) write(record []string) {
	if a.loadErr() != nil {
		return
	}
	err := a.w.Write(record)
	if err == nil {
		a.w.Flush()
		err = a.w.Error()
	}
	if err != nil {
		a.setErr(err)
		a.logger.Error("results file write failed", zap.Error(err))
	}
}

func (a *Appender) loadErr() error {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.err
}

// setErr keeps the first error.
func (a *Appender) setErr(err error) {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	if a.err == nil {
		a.err = err
	}
}
