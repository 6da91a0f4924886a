package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"parcelbot.ai/internal/agent/intentions"
	"parcelbot.ai/internal/agent/options"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqIntention}

	s.StartRun(Run{ID: "r"})
	s.EndRun("r", time.Now())
	s.RecordIntention("r", intentions.Outcome{IntentionID: "i"})
	s.Recorder("r").RecordIntention(intentions.Outcome{IntentionID: "j"})

	st := s.Stats()
	if st.DropRunTotal != 2 {
		t.Fatalf("DropRunTotal=%d want=2", st.DropRunTotal)
	}
	if st.DropIntentionTotal != 2 {
		t.Fatalf("DropIntentionTotal=%d want=2", st.DropIntentionTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_SummaryAndRuns(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "parcelbot.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.StartRun(Run{ID: "r1", AgentName: "bot", ServerURL: "ws://x", Strategy: "bfs", StartedAt: start})
	s.StartRun(Run{ID: "r2", AgentName: "bot", ServerURL: "ws://x", Strategy: "plan", StartedAt: start.Add(time.Hour)})

	rec := s.Recorder("r1")
	pick := options.Raw{ID: options.PickupID("p1"), Kind: options.KindPickup, ParcelID: "p1", Utility: 8}
	rec.RecordIntention(intentions.Outcome{IntentionID: "a", Option: pick, Executor: "pickup", Result: intentions.ResultAchieved, Started: start, Ended: start.Add(time.Second), Duration: time.Second})
	rec.RecordIntention(intentions.Outcome{IntentionID: "b", Option: pick, Executor: "pickup", Result: intentions.ResultAchieved, Started: start, Ended: start.Add(3 * time.Second), Duration: 3 * time.Second})
	rec.RecordIntention(intentions.Outcome{IntentionID: "c", Option: pick, Executor: "pickup", Result: string(intentions.CodePathNotFree), Error: "blocked", Started: start, Ended: start})
	s.Recorder("r2").RecordIntention(intentions.Outcome{IntentionID: "d", Option: pick, Executor: "pickup", Result: intentions.ResultAchieved, Started: start, Ended: start})
	s.EndRun("r1", start.Add(time.Minute))

	ctx := context.Background()
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	rows, err := s.Summary(ctx, "r1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: %+v", rows)
	}
	if rows[0].Result != intentions.ResultAchieved || rows[0].Count != 2 || rows[0].AvgDurationMs != 2000 {
		t.Fatalf("achieved row: %+v", rows[0])
	}
	if rows[1].Result != string(intentions.CodePathNotFree) || rows[1].Count != 1 {
		t.Fatalf("failure row: %+v", rows[1])
	}

	all, err := s.Summary(ctx, "")
	if err != nil {
		t.Fatalf("summary all: %v", err)
	}
	if all[0].Count != 3 {
		t.Fatalf("all achieved: %+v", all[0])
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "r2" || runs[1].ID != "r1" {
		t.Fatalf("runs: %+v", runs)
	}
	if !runs[1].EndedAt.Equal(start.Add(time.Minute)) || !runs[0].EndedAt.IsZero() {
		t.Fatalf("ended_at: %+v", runs)
	}
}

func TestSQLiteIndex_WritesAfterCloseAreIgnored(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "x.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	s.RecordIntention("r", intentions.Outcome{})
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
