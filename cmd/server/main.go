package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/time/rate"

	persistlog "terrainforge.dev/internal/persistence/log"
	"terrainforge.dev/internal/persistence/snapshot"
	"terrainforge.dev/internal/transport/observer"
	"terrainforge.dev/internal/tuning"
	"terrainforge.dev/internal/world"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 0, "override the tuning seed (0 keeps the tuning value)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite tile index")
		exportPath = flag.String("export", "", "write a snapshot of the active tiles here on shutdown")
		startX     = flag.Float64("x", 0, "initial tracked x")
		startZ     = flag.Float64("z", 0, "initial tracked z")
		trackRate  = flag.Float64("track_rate", 10, "max TRACK messages per second per observer")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Default()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	ctx, cancel := signalContext()
	defer cancel()

	w, err := world.New(ctx, world.Config{ID: *worldID, Tuning: tune, Logger: logger})
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	defer w.Close()

	// Optional: read-model index (does not affect generation).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		tj, _ := json.Marshal(w.Tuning())
		if err := idx.UpsertMeta(w.ID(), w.Seed(), tj); err != nil {
			logger.Printf("index backend: upsert meta: %v", err)
		}
		idx.Attach(w.Bus())
	}

	eventLog := persistlog.NewEventLogger(worldDir, w.ID(), logger)
	eventLog.Attach(w.Bus())
	defer eventLog.Close()

	obsSrv := observer.NewServer(observer.Options{Logger: logger, TrackRate: rate.Limit(*trackRate)})
	detach := obsSrv.Attach(w.Bus())
	defer detach()
	defer obsSrv.Close()

	h := newHost(w, obsSrv.Tracks(), mgl64.Vec2{*startX, *startZ}, logger)
	h.onStep = obsSrv.SetBootstrap

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, *worldID, h.Metrics(), obsSrv.Sessions())
		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "# HELP terrainforge_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE terrainforge_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "terrainforge_index_queue_depth{world=%q} %d\n", *worldID, st.QueueDepth)
			fmt.Fprintf(rw, "# HELP terrainforge_index_dropped_total Index events dropped under load.\n")
			fmt.Fprintf(rw, "# TYPE terrainforge_index_dropped_total counter\n")
			fmt.Fprintf(rw, "terrainforge_index_dropped_total{world=%q} %d\n", *worldID, st.DropEventTotal)
		}
	})
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())

	if envBool("TF_ENABLE_ADMIN_HTTP", true) {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(struct {
				WorldID string      `json:"world_id"`
				Metrics hostMetrics `json:"metrics"`
			}{WorldID: w.ID(), Metrics: h.Metrics()})
		})
	} else {
		logger.Printf("admin endpoints disabled (TF_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("TF_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()
	go func() {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("ListenAndServe: %v", err)
			cancel()
		}
	}()

	if err := h.run(ctx, w.Tuning().TickRateHz); err != nil {
		logger.Printf("world stopped: %v", err)
	}

	if p := strings.TrimSpace(*exportPath); p != "" {
		snap := snapshot.FromTiles(w.ID(), w.Seed(), w.Tiles().ActiveTiles())
		snap.Tuning, _ = json.Marshal(w.Tuning())
		if err := snapshot.WriteSnapshot(p, snap); err != nil {
			logger.Printf("export snapshot: %v", err)
		} else {
			logger.Printf("exported %d tiles to %s", len(snap.Tiles), p)
			idx.RecordSnapshot(p, snap.Header)
		}
	}
}

func writeMetrics(rw http.ResponseWriter, worldID string, m hostMetrics, sessions int) {
	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP terrainforge_tick Control loop tick.\n")
	fmt.Fprintf(rw, "# TYPE terrainforge_tick gauge\n")
	fmt.Fprintf(rw, "terrainforge_tick{world=%q} %d\n", worldID, m.Tick)

	fmt.Fprintf(rw, "# HELP terrainforge_tiles Tile counts by state.\n")
	fmt.Fprintf(rw, "# TYPE terrainforge_tiles gauge\n")
	fmt.Fprintf(rw, "terrainforge_tiles{world=%q,state=%q} %d\n", worldID, "active", m.Active)
	fmt.Fprintf(rw, "terrainforge_tiles{world=%q,state=%q} %d\n", worldID, "cached", m.Cached)
	fmt.Fprintf(rw, "terrainforge_tiles{world=%q,state=%q} %d\n", worldID, "pending", m.Pending)
	fmt.Fprintf(rw, "terrainforge_tiles{world=%q,state=%q} %d\n", worldID, "failed", m.Failed)

	fmt.Fprintf(rw, "# HELP terrainforge_step_ms Last step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE terrainforge_step_ms gauge\n")
	fmt.Fprintf(rw, "terrainforge_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	fmt.Fprintf(rw, "# HELP terrainforge_instances Pooled instances by type and state.\n")
	fmt.Fprintf(rw, "# TYPE terrainforge_instances gauge\n")
	for _, c := range m.Containers {
		fmt.Fprintf(rw, "terrainforge_instances{world=%q,type=%q,state=%q} %d\n", worldID, c.Type, "active", c.Active)
		fmt.Fprintf(rw, "terrainforge_instances{world=%q,type=%q,state=%q} %d\n", worldID, c.Type, "inactive", c.Inactive)
	}

	fmt.Fprintf(rw, "# HELP terrainforge_observers Connected observer sessions.\n")
	fmt.Fprintf(rw, "# TYPE terrainforge_observers gauge\n")
	fmt.Fprintf(rw, "terrainforge_observers{world=%q} %d\n", worldID, sessions)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
