package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"parcelbot.ai/internal/agent"
	"parcelbot.ai/internal/agent/executors"
	"parcelbot.ai/internal/agent/intentions"
	"parcelbot.ai/internal/agent/options"
	"parcelbot.ai/internal/agent/planner"
	"parcelbot.ai/internal/agent/utility"
	"parcelbot.ai/internal/config"
	"parcelbot.ai/internal/observe"
	"parcelbot.ai/internal/persistence/indexdb"
	"parcelbot.ai/internal/persistence/journal"
	"parcelbot.ai/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to agent.yaml (optional)")
		url        = flag.String("url", "", "server ws url (overrides config)")
		name       = flag.String("name", "", "agent name (overrides config)")
		token      = flag.String("token", "", "auth token (or set PARCELBOT_TOKEN)")
		strategy   = flag.String("strategy", "", "search or plan (overrides config)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")
		debugAddr  = flag.String("debug_addr", "", "pprof and /metrics listen address (empty to disable)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[agent] ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.Defaults()
	if p := strings.TrimSpace(*configPath); p != "" {
		c, err := config.Load(p)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		cfg = c
	}
	if *url != "" {
		cfg.Server.URL = *url
	}
	if *name != "" {
		cfg.Server.Name = *name
	}
	if t := strings.TrimSpace(*token); t != "" {
		cfg.Server.Token = t
	} else if t := strings.TrimSpace(os.Getenv("PARCELBOT_TOKEN")); t != "" {
		cfg.Server.Token = t
	}
	if *strategy != "" {
		cfg.Agent.Strategy = *strategy
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *disableDB {
		cfg.Storage.Index = false
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := strings.TrimSpace(*debugAddr); addr != "" {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
		if err != nil {
			logger.Fatalf("metrics provider: %v", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
		go serveDebug(addr, logger)
	}

	runID := uuid.NewString()
	var recs intentions.Recorders

	if cfg.Storage.Journal {
		jl := journal.NewIntentionLog(filepath.Join(cfg.Storage.DataDir, "journal"), runID, logger)
		defer func() {
			if err := jl.Close(); err != nil {
				logger.Printf("close journal: %v", err)
			}
		}()
		recs = append(recs, jl)
	}

	var idx *indexdb.SQLiteIndex
	if cfg.Storage.Index {
		var err error
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.Storage.DataDir, "index", "parcelbot.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		idx.StartRun(indexdb.Run{
			ID:        runID,
			AgentName: cfg.Server.Name,
			ServerURL: cfg.Server.URL,
			Strategy:  cfg.Agent.Strategy,
			StartedAt: time.Now(),
		})
		defer func() { idx.EndRun(runID, time.Now()) }()
		recs = append(recs, idx.Recorder(runID))
	}

	client, err := ws.Dial(ctx, cfg.Server.URL, ws.Options{
		Name:             cfg.Server.Name,
		Token:            cfg.Server.Token,
		ActionsPerSecond: cfg.Server.ActionsPerSecond,
		AckTimeout:       cfg.Server.AckTimeout,
		Validate:         cfg.Server.ValidateMessages,
	}, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer client.Close()

	welcome := client.Welcome()
	logger.Printf("joined run=%s agent_id=%s name=%s map=%dx%d strategy=%s",
		runID, welcome.AgentID, welcome.Name, welcome.Map.Width, welcome.Map.Height, cfg.Agent.Strategy)

	deps := agent.Deps{
		Recorder: recs,
		Metrics:  observe.Default(),
	}
	if cfg.Agent.Seed != 0 {
		deps.Rand = rand.New(rand.NewSource(cfg.Agent.Seed))
	}
	if cfg.Solver.URL != "" {
		deps.Solver = planner.NewHTTPSolver(cfg.Solver.URL, cfg.Solver.Timeout)
	}

	a := agent.New(client, client.Events(), agentConfig(cfg), deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(gctx) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-client.Done():
			if err := client.Err(); err != nil {
				return fmt.Errorf("session: %w", err)
			}
			return errors.New("session closed by server")
		}
	})

	err = g.Wait()
	if dropped := client.Dropped(); dropped > 0 {
		logger.Printf("dropped %d sensing events", dropped)
	}
	if idx != nil {
		st := idx.Stats()
		if st.DropRunTotal+st.DropIntentionTotal > 0 {
			logger.Printf("index dropped runs=%d intentions=%d", st.DropRunTotal, st.DropIntentionTotal)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("stopped: %v", err)
		return
	}
	logger.Printf("shutdown")
}

func agentConfig(c config.Config) agent.Config {
	return agent.Config{
		Strategy:     options.Strategy(c.Agent.Strategy),
		ChangingRisk: c.Agent.ChangingRisk,
		Utility: utility.Config{
			CarriedFactor:    c.Agent.CarriedFactor,
			SafetyMultiplier: c.Agent.SafetyMultiplier,
			Capacity:         c.Agent.Capacity,
		},
		Executors: executors.Config{
			MaxMoveRetries: c.Agent.MaxMoveRetries,
			MaxPathRetries: c.Agent.MaxPathRetries,
			FastPick:       c.Agent.FastPick,
			PatrolIdle:     c.Agent.PatrolIdle,
		},
		PenaltyWindow: c.Agent.PenaltyWindow,
		CacheEntries:  c.Agent.CacheEntries,
	}
}

func serveDebug(addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Printf("debug listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("debug server: %v", err)
	}
}
