// Package indexdb keeps a queryable SQLite index of agent runs and the
// intentions they executed. The journal remains the source of truth; the
// index drops writes rather than stall the agent.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"parcelbot.ai/internal/agent/intentions"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropRun       atomic.Uint64
	dropIntention atomic.Uint64
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqRunEnd
	reqIntention
	reqFlush
)

type req struct {
	kind reqKind

	run       Run
	runID     string
	intention intentions.Outcome
	done      chan struct{}
}

// Run describes one agent session.
type Run struct {
	ID        string
	AgentName string
	ServerURL string
	Strategy  string
	StartedAt time.Time
	EndedAt   time.Time
}

type Stats struct {
	QueueDepth         int
	QueueCapacity      int
	DropRunTotal       uint64
	DropIntentionTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 8192),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			agent_name TEXT NOT NULL,
			server_url TEXT NOT NULL,
			strategy TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS intentions (
			intention_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			option_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			strategy TEXT NOT NULL,
			parcel_id TEXT,
			executor TEXT NOT NULL,
			result TEXT NOT NULL,
			error TEXT,
			utility REAL NOT NULL,
			must_act INTEGER NOT NULL,
			final_x INTEGER NOT NULL,
			final_y INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_intentions_run ON intentions(run_id, started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_intentions_kind_result ON intentions(kind, result);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:         len(s.ch),
		QueueCapacity:      cap(s.ch),
		DropRunTotal:       s.dropRun.Load(),
		DropIntentionTotal: s.dropIntention.Load(),
	}
}

func (s *SQLiteIndex) StartRun(r Run) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqRun, run: r}:
	default:
		s.dropRun.Add(1)
	}
}

func (s *SQLiteIndex) EndRun(runID string, at time.Time) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqRunEnd, run: Run{ID: runID, EndedAt: at}}:
	default:
		s.dropRun.Add(1)
	}
}

func (s *SQLiteIndex) RecordIntention(runID string, o intentions.Outcome) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqIntention, runID: runID, intention: o}:
	default:
		// Drop if the indexer falls behind; the journal remains the source of truth.
		s.dropIntention.Add(1)
	}
}

// Recorder binds the index to one run.
func (s *SQLiteIndex) Recorder(runID string) intentions.Recorder {
	return runRecorder{s: s, runID: runID}
}

type runRecorder struct {
	s     *SQLiteIndex
	runID string
}

func (r runRecorder) RecordIntention(o intentions.Outcome) { r.s.RecordIntention(r.runID, o) }

// Flush blocks until every write queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,agent_name,server_url,strategy,started_at) VALUES(?,?,?,?,?)`)
	updateRunEnd, _ := s.db.Prepare(`UPDATE runs SET ended_at=? WHERE run_id=?`)
	insertIntention, _ := s.db.Prepare(`INSERT OR REPLACE INTO intentions(intention_id,run_id,option_id,kind,strategy,parcel_id,executor,result,error,utility,must_act,final_x,final_y,started_at,ended_at,duration_ms) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRun, updateRunEnd, insertIntention} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRun:
			exec(insertRun, r.run.ID, r.run.AgentName, r.run.ServerURL, r.run.Strategy, formatTime(r.run.StartedAt))
		case reqRunEnd:
			exec(updateRunEnd, formatTime(r.run.EndedAt), r.run.ID)
		case reqIntention:
			o := r.intention
			exec(insertIntention,
				o.IntentionID,
				r.runID,
				string(o.Option.ID),
				string(o.Option.Kind),
				string(o.Option.Strategy),
				o.Option.ParcelID,
				o.Executor,
				o.Result,
				o.Error,
				o.Option.Utility,
				o.Option.MustAct,
				o.Option.Final.X,
				o.Option.Final.Y,
				formatTime(o.Started),
				formatTime(o.Ended),
				o.Duration.Milliseconds(),
			)
		}
		flushIfNeeded()
	}

	commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
