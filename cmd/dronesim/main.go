package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/carrywater/dronesim-ar-sub000/core"
	"github.com/carrywater/dronesim-ar-sub000/internal/hitl"
	"github.com/carrywater/dronesim-ar-sub000/internal/logging"
	"github.com/carrywater/dronesim-ar-sub000/internal/observability"
	"github.com/carrywater/dronesim-ar-sub000/internal/recorder"
	"github.com/carrywater/dronesim-ar-sub000/internal/rng"
	"github.com/carrywater/dronesim-ar-sub000/internal/sched"
	"github.com/carrywater/dronesim-ar-sub000/kb"
	"github.com/carrywater/dronesim-ar-sub000/model"
	"github.com/carrywater/dronesim-ar-sub000/timectrl"
)

type options struct {
	configPath   string
	participant  int
	mode         string
	scenario     string
	seed         uint64
	tick         time.Duration
	accelerated  bool
	duration     time.Duration
	recordDir    string
	recordFormat string
	metricsAddr  string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to a session config JSON file")
	flag.IntVar(&opts.participant, "participant", -1, "participant index override (negative keeps the configured value)")
	flag.StringVar(&opts.mode, "mode", "", "scenario mode override: single, fixed or latin")
	flag.StringVar(&opts.scenario, "scenario", "", "scenario override for single mode: c0, c1 or c2")
	flag.Uint64Var(&opts.seed, "seed", 0, "session seed override (0 keeps the configured value)")
	flag.DurationVar(&opts.tick, "tick", 50*time.Millisecond, "simulation tick interval")
	flag.BoolVar(&opts.accelerated, "accel", true, "run in accelerated mode (vs real-time)")
	flag.DurationVar(&opts.duration, "duration", 0, "cap on simulated run time (0 runs until the session completes)")
	flag.StringVar(&opts.recordDir, "record", "", "directory for the session capture (empty disables recording)")
	flag.StringVar(&opts.recordFormat, "record-format", recorder.FormatMsgpack, "capture format: msgpack or jsonl")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn or error")
	logFile := flag.String("log-file", "", "tee logs to a size-rotated file")
	flag.Parse()

	log := logging.New(logging.Config{Level: *logLevel, File: *logFile})
	ctx := context.Background()

	if err := run(ctx, opts, log); err != nil {
		log.Error(ctx, "session run failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, log logging.Logger) error {
	cfg, err := loadConfig(ctx, opts.configPath, log)
	if err != nil {
		return err
	}
	applyOverrides(ctx, &cfg, opts, log)

	if cfg.Seed == 0 {
		cfg.Seed = deriveSeed()
		log.Info(ctx, "derived session seed", logging.Any("seed", cfg.Seed))
	}
	rand := rng.New(cfg.Seed)

	ctx, log = logging.WithSessionLogger(ctx, log)
	sessionID := logging.SessionIDFromContext(ctx)

	collector, err := observability.NewSimCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	mode := timectrl.RealTime
	if opts.accelerated {
		mode = timectrl.Accelerated
	}
	ctrl := timectrl.NewTimeController(time.Now().UTC(), opts.tick, mode)

	board := kb.New(ctrl, kb.WithLogger(log), kb.WithMetricsRecorder(collector))
	observability.NewSessionTracer(ctx, log).Observe(board)

	s := sched.New(ctrl)

	sway := core.NewSway(cfg.Sway, int64(rand.Split("sway").Uint32()))
	drone := core.NewDrone(cfg.Drone, s, log,
		core.WithSway(sway),
		core.WithFlightMetrics(collector),
	)

	hmi := core.NewHMI(hitl.NewConsoleCues(log), log, core.WithStatusMetrics(collector))

	participant := hitl.NewParticipant(s, board, log,
		hitl.WithDelays(cfg.ConfirmDelay, cfg.GuidanceDelay),
		hitl.WithZonePicker(core.NewZonePicker(cfg.Zone, rand.Split("guidance"))),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	orch := core.NewOrchestrator(cfg, drone, hmi, participant, board, s, log,
		core.WithZonePicker(core.NewZonePicker(cfg.Zone, rand.Split("zones"))),
		core.WithRand(rand.Split("confidence")),
		core.WithScenarioMetrics(collector),
		core.WithSessionDoneHook(func() {
			board.EndSession("completed")
			cancel()
		}),
	)

	engine := core.NewEngine(ctrl, s, orch, drone, hmi, board, log,
		core.WithEngineMetrics(collector))

	var rec *recorder.Recorder
	if opts.recordDir != "" {
		if err := os.MkdirAll(opts.recordDir, 0o755); err != nil {
			return fmt.Errorf("create capture dir: %w", err)
		}
		path := recorder.FilePath(opts.recordDir, sessionID, opts.recordFormat)
		w, err := recorder.NewFileWriter(opts.recordFormat, path)
		if err != nil {
			return err
		}
		rec = recorder.NewRecorder(w, ctrl.StartTime, log, recorder.WithSampleEvery(cfg.SampleEvery))
		rec.Observe(board)
		engine.AddSampler(rec.Sample)
		log.Info(ctx, "recording session", logging.String("path", path), logging.String("format", opts.recordFormat))
	}

	board.StartSession(sessionID, cfg.ParticipantIndex, cfg.Seed)
	orch.StartSession()

	sigCtx, stop := signal.NotifyContext(runCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	metricsSrv := &http.Server{Addr: opts.metricsAddr, Handler: mux}

	g.Go(func() error {
		log.Info(gctx, "serving Prometheus metrics", logging.String("addr", opts.metricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShut()
		return metricsSrv.Shutdown(shutCtx)
	})
	g.Go(func() error {
		err := engine.Run(gctx, opts.duration)
		cancel()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()

	if rec != nil {
		if cerr := rec.Close(); cerr != nil {
			log.Warn(ctx, "closing recorder", logging.Err(cerr))
		}
	}

	if !orch.Done() {
		board.EndSession("interrupted")
		if err == nil {
			err = errors.New("session interrupted before completion")
		}
	}
	if err != nil {
		return err
	}

	log.Info(ctx, "session completed",
		logging.String("session_id", sessionID),
		logging.Any("seed", cfg.Seed),
		logging.Int("participant", cfg.ParticipantIndex))
	return nil
}

// loadConfig reads the session config, running on defaults when the file
// is missing. Only structural JSON errors abort the run.
func loadConfig(ctx context.Context, path string, log logging.Logger) (model.SessionConfig, error) {
	cfg := model.DefaultSessionConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		log.Warn(ctx, "config file unavailable, using defaults",
			logging.String("path", path), logging.Err(err))
		return cfg, nil
	}
	defer f.Close()

	cfg, warns, err := model.LoadSessionConfig(f)
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	for _, w := range warns {
		log.Warn(ctx, "config value replaced", logging.String("detail", w))
	}
	log.Info(ctx, "loaded session config", logging.String("path", path))
	return cfg, nil
}

func applyOverrides(ctx context.Context, cfg *model.SessionConfig, opts options, log logging.Logger) {
	if opts.participant >= 0 {
		cfg.ParticipantIndex = opts.participant
	}
	if opts.seed != 0 {
		cfg.Seed = opts.seed
	}
	if opts.mode != "" {
		m, err := model.ParseMode(opts.mode)
		if err != nil {
			log.Warn(ctx, "unknown -mode value, keeping configured mode", logging.String("mode", opts.mode))
		} else {
			cfg.Mode = m
		}
	}
	if opts.scenario != "" {
		sc, err := model.ParseScenario(opts.scenario)
		if err != nil {
			log.Warn(ctx, "unknown -scenario value, keeping configured scenario", logging.String("scenario", opts.scenario))
			return
		}
		cfg.Scenario = sc
		if opts.mode == "" {
			cfg.Mode = model.ModeSingle
			log.Info(ctx, "scenario flag implies single mode")
		}
	}
}

// deriveSeed makes a fresh nonzero seed so a run without one is still
// replayable from the logged value.
func deriveSeed() uint64 {
	u := uuid.New()
	seed := binary.BigEndian.Uint64(u[:8])
	if seed == 0 {
		return 1
	}
	return seed
}
