// Package surfsync keeps OSC control surfaces in sync with a mixing session:
// banks of strips, link sets spanning several devices, and feedback of every
// control a surface shows.
package surfsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/MixyLabs/surfsync/pkg/surfsync/util"
)

const instanceLockFilename = "surfsync.lock"

// Surfsync is the main entity managing all subcomponents
type Surfsync struct {
	logger    *zap.SugaredLogger
	notifier  *ToastNotifier
	configMan *ConfigManager

	provider  Provider
	transport *UDPTransport
	engine    *Engine
	lock      *flock.Flock

	cancel      context.CancelFunc
	engineDone  chan struct{}
	stopChannel chan bool
	version     string
	verbose     bool
	port        int
}

// NewSurfsync creates the program entity. A port above zero overrides
// listen_port from the config file.
func NewSurfsync(logger *zap.SugaredLogger, verbose bool, configPath string, port int) (*Surfsync, error) {
	logger = logger.Named("surfsync")

	notifier, err := NewToastNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create ToastNotifier", "error", err)
		return nil, fmt.Errorf("create new ToastNotifier: %w", err)
	}

	config, err := NewConfig(logger, notifier, configPath)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	d := &Surfsync{
		logger:      logger,
		notifier:    notifier,
		configMan:   config,
		stopChannel: make(chan bool),
		engineDone:  make(chan struct{}),
		verbose:     verbose,
		port:        port,
	}

	logger.Debug("Created surfsync instance")

	return d, nil
}

// SetVersion records a version string for the startup log
func (d *Surfsync) SetVersion(version string) {
	d.version = version
}

// Verbose returns a boolean indicating whether surfsync is running in verbose mode
func (d *Surfsync) Verbose() bool {
	return d.verbose
}

// Initialize loads the config, builds the provider, transport and engine, and
// runs until interrupted
func (d *Surfsync) Initialize() error {
	d.logger.Debugw("Initializing", "version", d.version)

	if err := d.configMan.Load(); err != nil {
		d.logger.Errorw("Failed to load config during initialization", "error", err)
		return fmt.Errorf("load config during init: %w", err)
	}

	cfg := d.configMan.Current()
	d.notifier.SetEnabled(cfg.Notifications)

	if err := util.EnsureDirExists(logDirectory); err != nil {
		return fmt.Errorf("ensure log directory exists: %w", err)
	}

	lock, err := util.AcquireInstanceLock(filepath.Join(logDirectory, instanceLockFilename))
	if err != nil {
		d.logger.Errorw("Failed to acquire instance lock", "error", err)
		d.notifier.Notify("surfsync is already running", err.Error())
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	d.lock = lock

	provider, err := d.newProvider(cfg)
	if err != nil {
		d.logger.Errorw("Failed to create stripable provider", "provider", cfg.Provider, "error", err)
		return fmt.Errorf("create %s provider: %w", cfg.Provider, err)
	}
	d.provider = provider

	listenPort := cfg.ListenPort
	if d.port > 0 {
		listenPort = d.port
	}

	transport, err := NewUDPTransport(d.logger, listenPort, cfg.RemotePort, cfg.AddressOnly)
	if err != nil {
		return fmt.Errorf("create new UDPTransport: %w", err)
	}
	d.transport = transport

	engineCfg := cfg.EngineConfig()
	if d.verbose && engineCfg.DebugMode == DebugOff {
		engineCfg.DebugMode = DebugUnhandled
	}

	engine, err := NewEngine(d.logger, provider, transport, engineCfg)
	if err != nil {
		d.logger.Errorw("Failed to create Engine", "error", err)
		return fmt.Errorf("create new Engine: %w", err)
	}
	d.engine = engine

	if err := engine.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	d.setupInterruptHandler()
	d.run()

	return nil
}

// newProvider builds the stripable source named by the config
func (d *Surfsync) newProvider(cfg Config) (Provider, error) {
	if cfg.Provider == providerPulse {
		return newPulseProvider(d.logger)
	}

	memory := NewMemoryProvider(d.logger)
	for _, spec := range cfg.Strips {
		memory.Add(spec)
	}

	d.logger.Infow("Seeded memory provider", "strips", len(cfg.Strips))

	return memory, nil
}

func (d *Surfsync) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		d.logger.Debugw("Interrupted", "signal", signal)
		d.signalStop()
	}()
}

func (d *Surfsync) run() {
	d.logger.Info("Run loop starting")

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	go d.configMan.WatchConfigFileChanges()
	go d.applyConfigReloads(ctx)

	go d.transport.Listen()

	go func() {
		defer close(d.engineDone)
		defer d.recoverFromPanic()

		if err := d.engine.Run(ctx, d.transport.Inbound()); err != nil {
			d.logger.Warnw("Engine loop exited", "error", err)
		}
	}()

	// wait until gracefully stopped
	<-d.stopChannel
	d.logger.Debug("Stop channel signaled, terminating")

	if err := d.stop(); err != nil {
		d.logger.Warnw("Failed to stop surfsync", "error", err)
		os.Exit(1)
	} else {
		os.Exit(0)
	}
}

// applyConfigReloads hands reloaded defaults to the engine loop. Existing
// surfaces keep their setup.
func (d *Surfsync) applyConfigReloads(ctx context.Context) {
	reloads := d.configMan.SubscribeToChanges()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reloads:
			cfg := d.configMan.Current()
			d.notifier.SetEnabled(cfg.Notifications)

			engineCfg := cfg.EngineConfig()
			d.engine.Post(func() {
				d.engine.SetDefaults(engineCfg.Defaults)
				d.engine.SetDebugMode(engineCfg.DebugMode)
			})
		}
	}
}

func (d *Surfsync) signalStop() {
	d.logger.Debug("Signalling stop channel")
	d.stopChannel <- true
}

func (d *Surfsync) stop() error {
	d.logger.Info("Stopping")

	d.configMan.StopWatchingConfigFile()

	if d.cancel != nil {
		d.cancel()
	}
	<-d.engineDone

	// the loop has exited, so teardown runs here without racing it
	d.engine.Stop()

	if err := d.transport.Close(); err != nil {
		d.logger.Warnw("Failed to close transport", "error", err)
	}

	if closer, ok := d.provider.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			d.logger.Warnw("Failed to close provider", "error", err)
		}
	}

	if err := d.lock.Unlock(); err != nil {
		d.logger.Errorw("Failed to release instance lock", "error", err)
		return fmt.Errorf("release instance lock: %w", err)
	}

	_ = d.logger.Sync()

	return nil
}
