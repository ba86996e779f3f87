// Package journal appends JSON records, one per line, to date-organized
// files rotated by lumberjack.
package journal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	ErrClosed     = errors.New("journal closed")
	ErrBufferFull = errors.New("journal buffer full")
)

// Options configure a Writer.
type Options struct {
	// Buffer is the number of records queued before Write starts dropping.
	Buffer    int
	MaxSizeMB int
	// Now is the clock used for date directories.
	Now func() time.Time
}

// Writer queues records and writes them on a background goroutine to
// <dir>/<yyyy-mm-dd>/<name>.jsonl.
type Writer struct {
	dir   string
	name  string
	opts  Options
	queue chan any
	done  chan struct{}
	wg    sync.WaitGroup

	mu   sync.Mutex
	date string
	out  *lumberjack.Logger
	once sync.Once
}

// Open starts a writer. Nothing touches the disk until the first record.
func Open(dir, name string, opts Options) *Writer {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 25
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	w := &Writer{
		dir:   dir,
		name:  name,
		opts:  opts,
		queue: make(chan any, opts.Buffer),
		done:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Write queues record. It never blocks; a full buffer drops the record.
func (w *Writer) Write(record any) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.queue <- record:
		return nil
	default:
		slog.Warn("journal buffer full, dropping record", "journal", w.name)
		return ErrBufferFull
	}
}

// Close flushes queued records and closes the current file.
func (w *Writer) Close() error {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out != nil {
		return w.out.Close()
	}
	return nil
}

// Path returns the file records for t are written to.
func (w *Writer) Path(t time.Time) string {
	return filepath.Join(w.dir, t.UTC().Format("2006-01-02"), w.name+".jsonl")
}

func (w *Writer) loop() {
	defer w.wg.Done()
	for {
		select {
		case record := <-w.queue:
			w.write(record)
		case <-w.done:
			for {
				select {
				case record := <-w.queue:
					w.write(record)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("journal marshal failed", "journal", w.name, "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.opts.Now()
	if date := now.UTC().Format("2006-01-02"); date != w.date || w.out == nil {
		if !w.rotate(now, date) {
			return
		}
	}
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "journal", w.name, "error", err)
	}
}

func (w *Writer) rotate(now time.Time, date string) bool {
	if w.out != nil {
		_ = w.out.Close()
		w.out = nil
	}
	path := w.Path(now)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Error("journal directory create failed", "dir", filepath.Dir(path), "error", err)
		return false
	}
	w.out = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    w.opts.MaxSizeMB,
		MaxBackups: 30,
		MaxAge:     30,
	}
	w.date = date
	slog.Info("journal file opened", "file", path)
	return true
}
