package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/highway-planner/internal/api"
	"github.com/banshee-data/highway-planner/internal/config"
	"github.com/banshee-data/highway-planner/internal/db"
	"github.com/banshee-data/highway-planner/internal/health"
	"github.com/banshee-data/highway-planner/internal/monitoring"
	"github.com/banshee-data/highway-planner/internal/planner"
	"github.com/banshee-data/highway-planner/internal/roadmap"
	"github.com/banshee-data/highway-planner/internal/simserver"
	"github.com/banshee-data/highway-planner/internal/timeutil"
	"github.com/banshee-data/highway-planner/internal/units"
	"github.com/banshee-data/highway-planner/internal/version"
)

var (
	listen        = flag.String("listen", ":4567", "Simulator websocket listen address")
	apiListen     = flag.String("api-listen", ":8080", "HTTP API and debug listen address (empty to disable)")
	grpcListen    = flag.String("grpc-listen", "", "gRPC health listen address (empty to disable)")
	mapPath       = flag.String("map", "data/highway_map.csv", "Waypoint map file")
	configPath    = flag.String("config", "", "Planner config file (.json, .yaml or .yml); defaults apply when empty")
	dbPath        = flag.String("db", "planner.db", "SQLite file for recorded cycles (empty to disable recording)")
	speedUnits    = flag.String("units", units.MPH, "Default speed units of API responses")
	logDiag       = flag.String("log-diag", "", "Diag log destination: file path, or - for stderr (empty to disable)")
	logTrace      = flag.String("log-trace", "", "Trace log destination: file path, or - for stderr (empty to disable)")
	statsInterval = flag.Duration("stats-interval", 10*time.Second, "Interval of planning rate reports on the diag log (0 to disable)")
	healthCheck   = flag.String("health-check", "", "Query the gRPC health server at this address, print the result and exit")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// openLog resolves a log flag to a writer. The returned closer is never nil.
func openLog(dest string) (io.Writer, func(), error) {
	switch dest {
	case "":
		return nil, func() {}, nil
	case "-", "stderr":
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, func() {}, err
	}
	return f, func() { f.Close() }, nil
}

func runHealthCheck(addr string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := health.Check(ctx, addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	out, err := health.FormatResponse(resp)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	fmt.Println(out)
	if resp.GetStatus().String() != "SERVING" {
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.PlannerConfig, error) {
	if path == "" {
		return config.EmptyPlannerConfig(), nil
	}
	return config.LoadPlannerConfig(path)
}

// serveHTTP runs server until ctx is done, then shuts it down.
func serveHTTP(ctx context.Context, name string, server *http.Server) {
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start %s server: %v", name, err)
		}
	}()
	log.Printf("%s listening on %s", name, server.Addr)

	<-ctx.Done()
	log.Printf("shutting down %s server...", name)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("%s server shutdown error: %v", name, err)
		if err := server.Close(); err != nil {
			log.Printf("%s server force close error: %v", name, err)
		}
	}
	log.Printf("%s server routine stopped", name)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("planner", version.String())
		return
	}
	if *healthCheck != "" {
		os.Exit(runHealthCheck(*healthCheck))
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid -units %q, want one of: %s", *speedUnits, units.GetValidUnitsString())
	}

	diagW, closeDiag, err := openLog(*logDiag)
	if err != nil {
		log.Fatalf("failed to open diag log: %v", err)
	}
	defer closeDiag()
	traceW, closeTrace, err := openLog(*logTrace)
	if err != nil {
		log.Fatalf("failed to open trace log: %v", err)
	}
	defer closeTrace()
	monitoring.SetLogWriters(monitoring.LogWriters{Ops: os.Stderr, Diag: diagW, Trace: traceW})

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	road, err := roadmap.Load(*mapPath, cfg.GetTrackLength())
	if err != nil {
		log.Fatalf("failed to load map: %v", err)
	}
	log.Printf("loaded %d waypoints from %s (track length %.3f)", road.Len(), *mapPath, road.TrackLength())

	p := planner.New(road, planner.ConfigFromTuning(cfg), planner.InitialStateFromTuning(cfg))
	hub := simserver.NewHub()
	defer hub.Close()

	var store *db.DB
	if *dbPath != "" {
		store, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := simserver.Record(ctx, hub, store); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("recorder stopped: %v", err)
			}
			log.Print("recorder routine terminated")
		}()
	}

	if *statsInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			simserver.ReportStats(ctx, timeutil.RealClock{}, *statsInterval, p)
		}()
	}

	var healthServer *health.Server
	if *grpcListen != "" {
		healthServer, err = health.Start(*grpcListen)
		if err != nil {
			log.Fatalf("failed to start health server: %v", err)
		}
		log.Printf("gRPC health listening on %s", healthServer.Addr())
	}

	// Simulator server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveHTTP(ctx, "simulator", &http.Server{
			Addr:    *listen,
			Handler: simserver.NewServer(p, hub),
		})
	}()

	// API server goroutine
	if *apiListen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			var cycles api.CycleSource
			if store != nil {
				cycles = store
			}
			mux := api.NewServer(p, cycles, cfg, *speedUnits).ServeMux()
			hub.AttachAdminRoutes(mux)
			if store != nil {
				if err := store.AttachAdminRoutes(mux); err != nil {
					log.Printf("database admin routes disabled: %v", err)
				}
			}
			serveHTTP(ctx, "API", &http.Server{
				Addr:    *apiListen,
				Handler: api.LoggingMiddleware(mux),
			})
		}()
	}

	if healthServer != nil {
		healthServer.SetServing(true)
	}

	<-ctx.Done()
	if healthServer != nil {
		healthServer.Stop()
	}
	hub.Close()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
