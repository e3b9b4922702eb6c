// Package datalog appends status records to monthly ';'-separated files
// named YYYY-MM.csv.
package datalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sweeney/dewpoint-fan/internal/status"
)

// DefaultInterval is the periodic save interval.
const DefaultInterval = 6 * time.Minute

// ErrTimeNotEstablished is returned by Save when the record's timestamp is
// not trustworthy. Such records are never written.
var ErrTimeNotEstablished = errors.New("datalog: time not established")

// Logger writes records to dir. Not safe for concurrent use.
type Logger struct {
	dir        string
	intervalMs int64

	started  bool
	lastSave int64
	month    string
	ready    bool
}

// New creates a Logger. A non-positive interval selects DefaultInterval.
func New(dir string, interval time.Duration) *Logger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Logger{dir: dir, intervalMs: interval.Milliseconds()}
}

// Check verifies the directory exists and is writable and updates Ready.
func (l *Logger) Check() error {
	l.ready = false
	info, err := os.Stat(l.dir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s: not a directory", l.dir)
	}
	f, err := os.CreateTemp(l.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	l.ready = true
	return nil
}

// Ready reports the result of the last Check or write.
func (l *Logger) Ready() bool {
	return l.ready
}

// Path returns the file a record for month key (YYYY-MM) goes to.
func (l *Logger) Path(month string) string {
	return filepath.Join(l.dir, month+".csv")
}

// Due reports whether a record should be saved at nowMs: on the first
// established record, when the local month changes, and then every interval.
func (l *Logger) Due(nowMs int64, r status.Record, established bool) bool {
	if !established {
		return false
	}
	if !l.started || r.Local.MonthKey() != l.month {
		return true
	}
	return nowMs-l.lastSave >= l.intervalMs
}

// Save appends r to its monthly file, writing the header first when the file
// is new, and restarts the interval at nowMs.
func (l *Logger) Save(nowMs int64, r status.Record, established bool) error {
	if !established {
		return ErrTimeNotEstablished
	}
	month := r.Local.MonthKey()
	if err := l.append(l.Path(month), status.FormatRecord(r)); err != nil {
		l.ready = false
		return err
	}
	l.ready = true
	l.started = true
	l.month = month
	l.lastSave = nowMs
	return nil
}

// Tick saves r if it is due and reports whether it did.
func (l *Logger) Tick(nowMs int64, r status.Record, established bool) (bool, error) {
	if !l.Due(nowMs, r, established) {
		return false, nil
	}
	if err := l.Save(nowMs, r, established); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Logger) append(path, line string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", path, err)
	}
	buf := make([]byte, 0, len(status.CSVHeader)+len(line)+2)
	if info.Size() == 0 {
		buf = append(buf, status.CSVHeader...)
		buf = append(buf, '\n')
	}
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
