// Package journal keeps the append-only record of finished intentions as
// hourly zstd-compressed JSONL files.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"parcelbot.ai/internal/agent/intentions"
)

const Prefix = "intentions"

// Entry is one journal line.
type Entry struct {
	RunID string `json:"run_id"`
	intentions.Outcome
}

// IntentionLog appends the outcomes of one run to
// <dir>/intentions-YYYY-MM-DD-HH.jsonl.zst, starting a new file when the
// outcome's end hour changes. It implements intentions.Recorder.
type IntentionLog struct {
	dir   string
	runID string
	log   *log.Logger

	mu   sync.Mutex
	hour string
	f    *os.File
	enc  *zstd.Encoder
	buf  *bufio.Writer

	failed atomic.Int64
}

func NewIntentionLog(dir, runID string, logger *log.Logger) *IntentionLog {
	return &IntentionLog{dir: dir, runID: runID, log: logger}
}

func (l *IntentionLog) RecordIntention(o intentions.Outcome) {
	if err := l.append(Entry{RunID: l.runID, Outcome: o}); err != nil {
		if n := l.failed.Add(1); n == 1 && l.log != nil {
			l.log.Printf("journal write: %v", err)
		}
	}
}

// Errors counts failed writes.
func (l *IntentionLog) Errors() int64 { return l.failed.Load() }

func (l *IntentionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeFile()
}

func (l *IntentionLog) append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	at := e.Ended
	if at.IsZero() {
		at = time.Now()
	}
	if hour := at.UTC().Format("2006-01-02-15"); hour != l.hour {
		if err := l.openHour(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := l.buf.Write(b); err != nil {
		return err
	}
	return l.buf.Flush()
}

func (l *IntentionLog) openHour(hour string) error {
	if err := l.closeFile(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(l.dir, fmt.Sprintf("%s-%s.jsonl.zst", Prefix, hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f, l.enc, l.buf, l.hour = f, enc, bufio.NewWriterSize(enc, 32*1024), hour
	return nil
}

func (l *IntentionLog) closeFile() error {
	var err error
	if l.buf != nil {
		_ = l.buf.Flush()
	}
	if l.enc != nil {
		err = l.enc.Close()
	}
	if l.f != nil {
		_ = l.f.Close()
	}
	l.f, l.enc, l.buf, l.hour = nil, nil, nil, ""
	return err
}

// Files lists the journal files under dir in chronological order.
func Files(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, Prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile calls fn for every entry in a journal file.
func ReadFile(path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
