// modeswitchd - automatic input-method switching for modal editors
//
// The daemon listens to editor plugins over a Unix socket, detects
// transitions into normal mode, and switches the active input method to
// a Latin engine so command keystrokes are not eaten by a CJK
// composition window.
//
//	modeswitchd run          Run the daemon
//	modeswitchd status       Show daemon status
//	modeswitchd check-ime    Probe input-method frameworks
//	modeswitchd version      Print version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"modeswitchd/internal/config"
	"modeswitchd/internal/controller"
	"modeswitchd/internal/health"
	"modeswitchd/internal/host"
	"modeswitchd/internal/ime"
	"modeswitchd/internal/ipc"
	"modeswitchd/internal/logging"
	"modeswitchd/internal/metrics"
	"modeswitchd/internal/observer"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "run":
		cmdRun(os.Args[2:])
	case "status":
		cmdStatus()
	case "check-ime":
		cmdCheckIME()
	case "version":
		fmt.Println("modeswitchd", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`modeswitchd - Automatic input method switching for modal editors

USAGE:
    modeswitchd <command> [options]

COMMANDS:
    run          Run the daemon in the foreground
    status       Show status of a running daemon
    check-ime    Probe input-method frameworks on this machine
    version      Print the version
    help         Show this help message

HOW IT WORKS:
    Editor plugins (vscodevim, vscode-neovim, Dance, ...) connect to the
    daemon's Unix socket and stream mode, cursor, and selection events.
    When a transition into normal mode is detected and the active input
    method is CJK, the daemon switches it to a Latin engine so 'j', 'k',
    and friends act as commands instead of feeding a composition window.

CONFIGURATION:
    ~/.config/modeswitchd/config.toml (or $MODESWITCHD_CONFIG)
    Changes are picked up without a restart.`)
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}

	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing directories: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(log)
	defer log.Close()

	log.Info("modeswitchd starting", "version", version, "config", path)

	if err := writePIDFile(); err != nil {
		log.Warn("could not write pid file", "error", err)
	}
	defer removePIDFile()

	// Metrics
	registry := metrics.Default()
	stats := metrics.NewDaemonMetrics(registry)

	// Host runtime and observers
	rt := host.NewRuntime(log)
	rt.Start()

	mgr := observer.NewManager(log)
	for _, o := range observer.DefaultObservers(log) {
		mgr.Register(o)
	}

	// Input method service. An unreachable framework degrades the
	// daemon, it does not stop it: detection keeps running, switches
	// are skipped until the framework shows up.
	acquireCtx, cancelAcquire := context.WithTimeout(context.Background(),
		time.Duration(cfg.IME.WaitTimeoutSec)*time.Second+time.Second)
	sw, err := ime.Acquire(acquireCtx, ime.AcquireConfig{
		Framework:   cfg.IME.Framework,
		WaitTimeout: time.Duration(cfg.IME.WaitTimeoutSec) * time.Second,
	}, log)
	cancelAcquire()
	if err != nil {
		if errors.Is(err, ime.ErrUnavailable) {
			log.Warn("no input method framework available, running degraded",
				"framework", cfg.IME.Framework)
		} else {
			log.Error("input method probe failed", "error", err)
		}
		sw = nil
	}
	svc := ime.NewService(sw, cfg.IME.LatinEngine, stats, log)

	ctrl := controller.New(cfg, mgr, svc, rt, stats, log)
	ctrl.Setup()

	// Re-run setup whenever an editor plugin announces or retires an
	// extension. The subscription is deliberately not registered with
	// the runtime so Reset cannot dispose it.
	rt.OnTopologyChange(func() {
		ctrl.Resetup()
	})

	// Health
	checker := health.NewChecker()
	checker.RegisterFunc("ime", false, health.SwitcherCheck(svc.Available, svc.Framework))
	checker.RegisterFunc("observers", false, health.ObserverCheck(mgr.AttachedCount, mgr.HeuristicActive))

	// Shutdown plumbing: signals and the IPC shutdown command share a
	// channel so the teardown below runs exactly once.
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	// IPC server
	var server *ipc.Server
	if cfg.IPC.Enabled {
		handler := ipc.NewDaemonHandler(ipc.DaemonHandlerConfig{
			Version:    version,
			Runtime:    rt,
			Controller: ctrl,
			Manager:    mgr,
			Service:    svc,
			Loader:     loader,
			Health:     checker,
			Stats:      stats,
			Logger:     log,
			Shutdown: func() {
				shutdownCh <- syscall.SIGTERM
			},
		})

		server, err = ipc.NewServer(ipc.ServerConfig{
			SocketPath:     cfg.IPC.SocketPath,
			Version:        version,
			MaxConnections: cfg.IPC.MaxConnections,
			Logger:         log,
			Stats:          stats,
		}, handler)
		if err != nil {
			log.Error("ipc server setup failed", "error", err)
			os.Exit(1)
		}
		if err := server.Start(); err != nil {
			log.Error("ipc server start failed", "error", err)
			os.Exit(1)
		}
		handler.SetBroadcaster(server.Broadcast)
		checker.RegisterFunc("ipc", true, health.SocketCheck(cfg.IPC.SocketPath))

		ctrl.SetNormalHook(func(origin string) {
			server.Broadcast(&ipc.Event{
				Type:      ipc.EventNormalMode,
				Timestamp: time.Now(),
				Data:      ipc.NormalModeEvent{Origin: origin},
			})
		})
	} else {
		log.Warn("ipc disabled, no editor plugin can reach the daemon")
	}

	// Metrics / health HTTP endpoint
	var httpServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", registry.HTTPHandler())
		mux.Handle("/healthz", checker.HealthHandler())
		mux.Handle("/livez", checker.LivenessHandler())
		mux.Handle("/readyz", checker.ReadinessHandler())
		httpServer = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			log.Info("metrics endpoint listening", "addr", cfg.Metrics.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	// Configuration hot-reload
	loader.OnChange(func(next *config.Config) {
		ctrl.Reconfigure(next)
		if server != nil {
			server.Broadcast(&ipc.Event{
				Type:      ipc.EventConfigChanged,
				Timestamp: time.Now(),
			})
		}
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config watch unavailable, reload via modeswitchctl only", "error", err)
	}

	checker.SetReady(true)
	log.Info("modeswitchd ready",
		"selection", ctrl.Selection(),
		"observers", mgr.AttachedCount(),
		"heuristic", mgr.HeuristicActive(),
		"ime", svc.Framework())

	sig := <-shutdownCh
	log.Info("shutting down", "signal", sig)
	checker.SetReady(false)

	if httpServer != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		httpServer.Shutdown(shutCtx)
		cancel()
	}
	if server != nil {
		server.Stop()
	}
	loader.Close()
	rt.Stop()
}

// cmdStatus pings a running daemon over IPC and prints a short summary.
func cmdStatus() {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	clientCfg := ipc.DefaultClientConfig(filepath.Dir(cfg.IPC.SocketPath))
	clientCfg.SocketPath = cfg.IPC.SocketPath
	clientCfg.ClientName = "modeswitchd"
	clientCfg.ClientVersion = version
	clientCfg.AutoReconnect = false

	client := ipc.NewClient(clientCfg)
	if err := client.Connect(); err != nil {
		fmt.Println("Daemon: NOT RUNNING")
		fmt.Printf("  (%v)\n", err)
		os.Exit(1)
	}
	defer client.Close()

	status, err := client.Status(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying status: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Daemon: RUNNING (version %s, up %s)\n", status.Version, status.Uptime.Round(time.Second))
	fmt.Printf("Selection: %s\n", status.Selection)
	fmt.Printf("IME: %s", status.IMEFramework)
	if status.IMEDegraded {
		fmt.Print(" (degraded)")
	}
	fmt.Println()
	fmt.Printf("Normal transitions: %d, switches issued: %d\n",
		status.NormalTransitions, status.SwitchesIssued)
}

// cmdCheckIME probes frameworks without starting the daemon.
func cmdCheckIME() {
	fmt.Println("=== Input Method Frameworks ===")

	detected := ime.DetectFramework()
	if detected == "" {
		fmt.Println("No framework detected on this platform.")
		os.Exit(1)
	}
	fmt.Printf("Detected: %s\n\n", detected)

	log, _ := logging.New(logging.DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sw, err := ime.Acquire(ctx, ime.AcquireConfig{Framework: "auto"}, log)
	if err != nil {
		fmt.Printf("Probe failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Reachable: %s\n", sw.Name())
	engine, err := sw.Current(ctx)
	if err != nil {
		fmt.Printf("Current engine: unavailable (%v)\n", err)
		return
	}
	fmt.Printf("Current engine: %s", engine)
	if ime.IsCJK(engine) {
		fmt.Print(" (CJK - would switch on normal mode)")
	}
	fmt.Println()
}

// newLogger builds the process logger from configuration.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = logging.ParseFormat(cfg.Logging.Format)
	lc.Output = cfg.Logging.Output
	if cfg.Logging.FilePath != "" {
		lc.FilePath = cfg.Logging.FilePath
	}
	lc.MaxSize = int64(cfg.Logging.MaxSizeMB)
	lc.MaxBackups = cfg.Logging.MaxBackups
	lc.MaxAge = cfg.Logging.MaxAgeDays
	lc.Compress = cfg.Logging.Compress

	return logging.New(lc)
}

func pidFilePath() string {
	return filepath.Join(config.DataDir(), "modeswitchd.pid")
}

func writePIDFile() error {
	path := pidFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600)
}

func removePIDFile() {
	os.Remove(pidFilePath())
}
