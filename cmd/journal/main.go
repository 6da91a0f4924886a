package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"parcelbot.ai/internal/persistence/indexdb"
	"parcelbot.ai/internal/persistence/journal"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  journal log [-data ./data] [-run RUN_ID] [-tail N]
  journal db  [-data ./data | -db PATH] [-run RUN_ID] summary|runs`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "log":
		logCmd(os.Args[2:])
	case "db":
		dbCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

type group struct {
	Kind     string  `json:"kind"`
	Result   string  `json:"result"`
	Count    int     `json:"count"`
	AvgMs    float64 `json:"avg_ms"`
	totalDur time.Duration
}

func logCmd(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id filter (optional)")
	tail := fs.Int("tail", 0, "also print the last N entries")
	_ = fs.Parse(args)

	files, err := journal.Files(filepath.Join(*dataDir, "journal"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", *dataDir)
		os.Exit(1)
	}

	groups := map[[2]string]*group{}
	var last []journal.Entry
	total := 0
	for _, path := range files {
		err := journal.ReadFile(path, func(e journal.Entry) error {
			if *runID != "" && e.RunID != *runID {
				return nil
			}
			total++
			key := [2]string{string(e.Option.Kind), e.Result}
			g := groups[key]
			if g == nil {
				g = &group{Kind: key[0], Result: key[1]}
				groups[key] = g
			}
			g.Count++
			g.totalDur += e.Duration
			if *tail > 0 {
				last = append(last, e)
				if len(last) > *tail {
					last = last[1:]
				}
			}
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
	}

	out := make([]*group, 0, len(groups))
	for _, g := range groups {
		g.AvgMs = float64(g.totalDur.Milliseconds()) / float64(g.Count)
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Result < out[j].Result
	})

	enc := json.NewEncoder(os.Stdout)
	for _, g := range out {
		_ = enc.Encode(g)
	}
	for _, e := range last {
		_ = enc.Encode(e)
	}
	fmt.Printf("files=%d intentions=%d\n", len(files), total)
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	runID := fs.String("run", "", "run id filter (summary only)")
	_ = fs.Parse(args)

	q := "summary"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "parcelbot.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx := context.Background()
	enc := json.NewEncoder(os.Stdout)
	switch q {
	case "summary":
		rows, err := idx.Summary(ctx, *runID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			_ = enc.Encode(group{Kind: r.Kind, Result: r.Result, Count: r.Count, AvgMs: r.AvgDurationMs})
		}
	case "runs":
		runs, err := idx.Runs(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range runs {
			_ = enc.Encode(r)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		os.Exit(2)
	}
}
