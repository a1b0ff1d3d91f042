package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("Whisprin v%s\n", version)
	fmt.Println("Pen pressure to sound daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  whisprin [OPTIONS]")
	fmt.Println("  whisprin sendctl <command> [args]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that senses stylus tip pressure and plays a seamless audio")
	fmt.Println("  loop whose volume tracks the pressure on a perceptual curve. Pen")
	fmt.Println("  input is acquired through the most capable available mechanism")
	fmt.Println("  (pointer API, raw HID, low-level hook, wintab) with automatic")
	fmt.Println("  fallback.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file path (optional; flags override it)")
	fmt.Println()
	fmt.Println("  -sample string")
	fmt.Printf("        WAV file to loop (default %q)\n", defaultSamplePath)
	fmt.Println()
	fmt.Println("  -output-sample-rate int")
	fmt.Printf("        Output sample rate in Hz; the sample is resampled to match (default %d)\n", defaultOutputSampleRate)
	fmt.Println()
	fmt.Println("  -idle-timeout-ms int")
	fmt.Printf("        Release the audio device after this long without pen contact (default %d)\n", int(defaultIdleTimeout/time.Millisecond))
	fmt.Println()
	fmt.Println("  -volume-offset-db float")
	fmt.Println("        Output gain offset in dB, clamped to [-12, 0] (default 0.0)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocketPath)
	fmt.Println()
	fmt.Println("  -ws-port int")
	fmt.Printf("        Status WebSocket listener port (default %d)\n", defaultWSPort)
	fmt.Println()
	fmt.Println("  -denylist string")
	fmt.Println("        YAML file listing process/window-class names whose windows suppress pen input")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("SUBCOMMANDS:")
	fmt.Println("  sendctl")
	fmt.Println("        Send a control command to a running daemon over IPC")
	fmt.Println("        Commands: enable | disable | offset <db> | status")
	fmt.Println("        Options: -ipc-socket")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start daemon with default settings")
	fmt.Println("  whisprin")
	fmt.Println()
	fmt.Println("  # Custom loop sample and quieter output")
	fmt.Println("  whisprin -sample rain.wav -volume-offset-db -6")
	fmt.Println()
	fmt.Println("  # Pause pen playback from a script")
	fmt.Println("  whisprin sendctl disable")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Pen acquisition requires Windows; the fallback chain tries the")
	fmt.Println("    pointer API, raw HID registration, a low-level pointer hook and")
	fmt.Println("    finally wintab, in that order")
	fmt.Println("  - The audio device is opened lazily on first pen contact and")
	fmt.Println("    released after the idle timeout")
	fmt.Println()
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "sendctl" {
		runSendctlSubcommand()
		return
	}

	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath       = flag.String("config", "", "YAML config file path")
		samplePath       = flag.String("sample", "", "WAV file to loop")
		outputSampleRate = flag.Int("output-sample-rate", 0, "Output sample rate in Hz")
		idleTimeoutMs    = flag.Int("idle-timeout-ms", 0, "Idle disposal timeout in milliseconds")
		volumeOffsetDb   = flag.Float64("volume-offset-db", 0, "Output gain offset in dB")
		ipcSocketPath    = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		wsPort           = flag.Int("ws-port", 0, "Status WebSocket listener port")
		denylistPath     = flag.String("denylist", "", "Window suppression denylist YAML file")
		logLevelStr      = flag.String("log-level", "", "Log level: error, warn, info, debug")
		showVersion      = flag.Bool("version", false, "Print version and exit")
		showHelp         = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Bootstrap logger for config loading; replaced once the configured
	// level is known.
	bootLogger, _ := newLogger("info")

	settings, err := loadSettings(*configPath, bootLogger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Flags override config file values.
	if *samplePath != "" {
		settings.SamplePath = *samplePath
	}
	if *outputSampleRate != 0 {
		settings.OutputSampleRate = *outputSampleRate
	}
	if *idleTimeoutMs != 0 {
		settings.IdleTimeout = time.Duration(*idleTimeoutMs) * time.Millisecond
	}
	if isFlagSet("volume-offset-db") {
		settings.VolumeOffsetDb = *volumeOffsetDb
	}
	if *ipcSocketPath != "" {
		settings.IPCSocketPath = *ipcSocketPath
	}
	if *wsPort != 0 {
		settings.WSPort = *wsPort
	}
	if *denylistPath != "" {
		settings.DenylistPath = *denylistPath
	}
	if *logLevelStr != "" {
		settings.LogLevel = *logLevelStr
	}

	logger, err := newLogger(settings.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	matcher, err := loadDenylist(settings.DenylistPath)
	if err != nil {
		logger.Error("failed to load denylist", "error", err)
		os.Exit(1)
	}
	filter := newWindowFilter(matcher, logger)

	session := NewAudioSession(SessionConfig{
		SamplePath:       settings.SamplePath,
		OutputSampleRate: settings.OutputSampleRate,
		IdleTimeout:      settings.IdleTimeout,
		VolumeOffsetDb:   settings.VolumeOffsetDb,
		Logger:           logger,
	})
	defer session.Close()

	chain := NewFallbackChain(defaultProviders(permissiveTagClassifier{}, filter, logger), logger)
	if err := chain.Activate(); err != nil {
		if errors.Is(err, ErrNoProvider) {
			logger.Error("no input provider could start", "tip", "is a pen digitizer attached?")
		} else {
			logger.Error("input activation failed", "error", err)
		}
		os.Exit(1)
	}
	defer chain.Deactivate()

	orch := NewOrchestrator(chain, session, logger)

	wsServer := NewStatusServer(logger, orch)
	statusUpdates := make(chan StatusSnapshot, 64)
	orch.SetNotify(func(snap StatusSnapshot) {
		select {
		case statusUpdates <- snap:
		default:
		}
	})

	closeIPC, err := runIPCServer(settings.IPCSocketPath, orch, logger)
	if err != nil {
		logger.Error("failed to start IPC server", "error", err)
		os.Exit(1)
	}
	defer closeIPC()

	mux := http.NewServeMux()
	wsServer.Register(mux, "/ws")
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", settings.WSPort),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("listening",
		"provider", chain.ActiveName(),
		"sample", settings.SamplePath,
		"output_sample_rate", settings.OutputSampleRate,
		"ipc", settings.IPCSocketPath,
		"ws_port", settings.WSPort)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return orch.Run(gctx)
	})

	g.Go(func() error {
		wsServer.Hub().Run(gctx)
		return nil
	})

	g.Go(func() error {
		RunStatusBroadcaster(gctx, wsServer.Hub(), statusUpdates, logger)
		return nil
	})

	g.Go(func() error {
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("daemon error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func printSendctlUsage() {
	fmt.Printf("Whisprin sendctl v%s\n", version)
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  whisprin sendctl [OPTIONS] <command> [args]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  enable            Resume pen-driven playback")
	fmt.Println("  disable           Pause pen-driven playback")
	fmt.Println("  offset <db>       Set output gain offset in dB (clamped to [-12, 0])")
	fmt.Println("  status            Print the daemon status snapshot")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocketPath)
	fmt.Println()
}

// runSendctlSubcommand sends one control action to a running daemon.
func runSendctlSubcommand() {
	fs := flag.NewFlagSet("sendctl", flag.ExitOnError)
	ipcSocketPath := fs.String("ipc-socket", defaultIPCSocketPath, "Unix domain socket path for IPC")
	showHelp := fs.Bool("help", false, "Print help message")
	fs.Usage = printSendctlUsage

	fs.Parse(os.Args[2:])

	if *showHelp || fs.NArg() == 0 {
		printSendctlUsage()
		if fs.NArg() == 0 && !*showHelp {
			os.Exit(1)
		}
		return
	}

	var action Action
	switch fs.Arg(0) {
	case "enable":
		action = Enable{}
	case "disable":
		action = Disable{}
	case "offset":
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "error: offset requires a dB value")
			os.Exit(1)
		}
		db, err := strconv.ParseFloat(fs.Arg(1), 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid dB value %q\n", fs.Arg(1))
			os.Exit(1)
		}
		action = SetVolumeOffset{Db: db}
	case "status":
		action = RequestStatus{}
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", fs.Arg(0))
		printSendctlUsage()
		os.Exit(1)
	}

	resp, err := SendIPCAction(*ipcSocketPath, action)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if resp.Snapshot != nil {
		s := resp.Snapshot
		fmt.Printf("enabled:         %v\n", s.Enabled)
		fmt.Printf("active provider: %s\n", s.ActiveProvider)
		fmt.Printf("offset db:       %.1f\n", s.OffsetDb)
		fmt.Printf("playing:         %v\n", s.Playing)
		fmt.Printf("last pressure:   %.3f\n", s.LastPressure)
	} else {
		fmt.Println("ok")
	}
}
