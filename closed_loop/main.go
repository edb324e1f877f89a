package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"twiddle-pid-core/utils"
)

func main() {
	var (
		cfgPath   = flag.String("config", "", "YAML run file (defaults are used when empty)")
		transport = flag.String("transport", "", "websocket|can|both|replay (overrides the run file)")
		scenPath  = flag.String("scenario", "", "Scenario JSON for the replay transport (overrides the run file)")
		listen    = flag.String("listen", "", "Websocket listen address (overrides the run file)")
		iface     = flag.String("iface", "", "SocketCAN interface name (overrides the run file)")
		logLevel  = flag.String("log", "", "trace|debug|info|warn|error|critical (overrides the run file)")
	)
	flag.Parse()

	cfg := DefaultRunConfig()
	if *cfgPath != "" {
		var err error
		if cfg, err = LoadRunConfig(*cfgPath); err != nil {
			_, _ = os.Stderr.WriteString("ERROR: config " + *cfgPath + ": " + err.Error() + "\n")
			os.Exit(1)
		}
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *scenPath != "" {
		cfg.Scenario = *scenPath
	}
	if *iface != "" {
		cfg.CAN.Interface = *iface
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	log, err := utils.NewFileLogger(cfg.Log.File, utils.ParseLevel(cfg.Log.Level), cfg.Log.Stdout)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open " + cfg.Log.File + ": " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	if err := cfg.Validate(); err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGHUP reopens the log file for external rotation.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			if err := log.Rotate(); err != nil {
				log.Error("log rotate: %v", err)
			}
		}
	}()

	rcfg := RunnerConfig{Driver: cfg.Driver, RestartOnTune: cfg.RestartOnTune}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.usesWebsocket() {
		srv := NewWSServer(cfg.Listen, rcfg, log)
		g.Go(func() error { return srv.ListenAndServe(gctx) })
	}
	if cfg.usesCAN() {
		g.Go(func() error { return runCAN(gctx, cfg, rcfg, log) })
	}
	if cfg.Transport == TransportReplay {
		g.Go(func() error { return runScenario(gctx, cfg.Scenario, rcfg, log) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		stop()
		_ = log.Close()
		os.Exit(1)
	}
	log.Info("Shutting down")
}
