package surfsync

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MixyLabs/surfsync/pkg/surfsync/util"
)

type ConfigManager struct {
	logger             *zap.SugaredLogger
	notifier           Notifier
	stopWatcherChannel chan bool

	reloadConsumers []chan bool

	path       string
	userConfig *viper.Viper

	current Config
}

type Config struct {
	ListenPort     int    `mapstructure:"listen_port"`
	RemotePort     int    `mapstructure:"remote_port"`
	AddressOnly    bool   `mapstructure:"address_only"`
	DebugMode      string `mapstructure:"debug_mode"`
	TickIntervalMs int    `mapstructure:"tick_interval_ms"`
	Provider       string `mapstructure:"provider"`
	Notifications  bool   `mapstructure:"notifications"`

	Defaults struct {
		BankSize       int `mapstructure:"bank_size"`
		StripTypes     int `mapstructure:"strip_types"`
		Feedback       int `mapstructure:"feedback"`
		GainMode       int `mapstructure:"gain_mode"`
		SendPageSize   int `mapstructure:"send_page_size"`
		PluginPageSize int `mapstructure:"plugin_page_size"`
	} `mapstructure:"defaults"`

	// Strips seeds the memory provider
	Strips []StripableSpec `mapstructure:"strips"`
}

const (
	defaultConfigFilepath = "config.yaml"

	configType = "yaml"

	providerMemory = "memory"
	providerPulse  = "pulse"

	configKeyListenPort     = "listen_port"
	configKeyRemotePort     = "remote_port"
	configKeyAddressOnly    = "address_only"
	configKeyDebugMode      = "debug_mode"
	configKeyTickIntervalMs = "tick_interval_ms"
	configKeyProvider       = "provider"
	configKeyNotifications  = "notifications"
	configKeyDefaults       = "defaults"
	configKeyStrips         = "strips"
)

func NewConfig(logger *zap.SugaredLogger, notifier Notifier, path string) (*ConfigManager, error) {
	logger = logger.Named("config")

	if path == "" {
		path = defaultConfigFilepath
	}

	cc := &ConfigManager{
		logger:             logger,
		notifier:           notifier,
		reloadConsumers:    []chan bool{},
		stopWatcherChannel: make(chan bool),
		path:               path,
	}

	userConfig := viper.New()
	userConfig.SetConfigFile(path)
	userConfig.SetConfigType(configType)

	userConfig.SetDefault(configKeyListenPort, 3819)
	userConfig.SetDefault(configKeyRemotePort, 8000)
	userConfig.SetDefault(configKeyAddressOnly, true)
	userConfig.SetDefault(configKeyDebugMode, "off")
	userConfig.SetDefault(configKeyTickIntervalMs, int(defaultTickInterval/time.Millisecond))
	userConfig.SetDefault(configKeyProvider, providerMemory)
	userConfig.SetDefault(configKeyNotifications, true)
	userConfig.SetDefault(configKeyDefaults, map[string]any{
		"bank_size":        0,
		"strip_types":      DefaultStripTypes,
		"feedback":         0,
		"gain_mode":        int(GainDB),
		"send_page_size":   0,
		"plugin_page_size": 0,
	})
	userConfig.SetDefault(configKeyStrips, []any{})

	cc.userConfig = userConfig

	logger.Debug("Created config instance")

	return cc, nil
}

// Current returns a copy of the last successfully loaded config
func (cc *ConfigManager) Current() Config {
	return cc.current
}

func (cc *ConfigManager) Load() error {
	cc.logger.Debugw("Loading config", "path", cc.path)

	// make sure it exists
	if !util.FileExists(cc.path) {
		cc.logger.Warnw("Config file not found", "path", cc.path)
		cc.notifier.Notify("Can't find configuration!",
			fmt.Sprintf("%s must exist next to surfsync. Please re-launch", filepath.Base(cc.path)))

		return fmt.Errorf("config file doesn't exist: %s", cc.path)
	}

	if err := cc.userConfig.ReadInConfig(); err != nil {
		cc.logger.Warnw("Viper failed to read user config", "error", err)

		// yaml errors get a readable hint, the rest only goes to the logs
		if strings.Contains(err.Error(), "yaml:") {
			cc.notifier.Notify("Invalid configuration!",
				fmt.Sprintf("Please make sure %s is in a valid YAML format.", filepath.Base(cc.path)))
		} else {
			cc.notifier.Notify("Error loading configuration!", "Please check surfsync's logs for more details.")
		}

		return fmt.Errorf("read user config: %w", err)
	}

	if err := cc.populateFromViper(); err != nil {
		cc.logger.Warnw("Failed to populate config fields", "error", err)
		return fmt.Errorf("populate config fields: %w", err)
	}

	cc.logger.Info("Loaded config successfully")
	cc.logger.Infow("Config values",
		"listenPort", cc.current.ListenPort,
		"remotePort", cc.current.RemotePort,
		"addressOnly", cc.current.AddressOnly,
		"provider", cc.current.Provider,
		"debugMode", cc.current.DebugMode,
		"strips", len(cc.current.Strips))

	return nil
}

// SubscribeToChanges allows external components to receive updates when the config is reloaded
func (cc *ConfigManager) SubscribeToChanges() chan bool {
	c := make(chan bool)
	cc.reloadConsumers = append(cc.reloadConsumers, c)

	return c
}

// WatchConfigFileChanges starts watching for configuration file changes
// and attempts reloading the config when they happen
func (cc *ConfigManager) WatchConfigFileChanges() {
	cc.logger.Debugw("Starting to watch user config file for changes", "path", cc.path)

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)

	lastAttemptedReload := time.Now()

	cc.userConfig.WatchConfig()
	cc.userConfig.OnConfigChange(func(event fsnotify.Event) {
		if event.Op&fsnotify.Write != fsnotify.Write {
			return
		}

		// many editors write twice
		now := time.Now()
		if !lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {
			return
		}

		cc.logger.Debugw("Config file modified, attempting reload", "event", event)

		// let the editor finish flushing
		<-time.After(delayBetweenEventAndReload)

		if err := cc.Load(); err != nil {
			cc.logger.Warnw("Failed to reload config file", "error", err)
		} else {
			cc.logger.Info("Reloaded config successfully")
			cc.notifier.Notify("Configuration reloaded!", "New surfaces will use the updated defaults.")

			cc.onConfigReloaded()
		}

		lastAttemptedReload = now
	})

	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopping user config file watcher")
	cc.userConfig.OnConfigChange(nil)
}

// StopWatchingConfigFile signals our filesystem watcher to stop
func (cc *ConfigManager) StopWatchingConfigFile() {
	cc.stopWatcherChannel <- true
}

func (cc *ConfigManager) populateFromViper() error {
	var next Config

	err := cc.userConfig.Unmarshal(&next, func(dConf *mapstructure.DecoderConfig) {
		dConf.WeaklyTypedInput = false
		dConf.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			kindDecodeHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err != nil {
		return err
	}

	if _, err := ParseDebugMode(next.DebugMode); err != nil {
		return err
	}

	switch next.Provider {
	case providerMemory, providerPulse:
	default:
		return fmt.Errorf("unknown provider: %q", next.Provider)
	}

	cc.current = next.clamped()

	cc.logger.Debug("Populated config fields from viper")

	return nil
}

// kindDecodeHook lets fixtures name kinds as "audio_bus" or "B"
func kindDecodeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(Kind(0)) || from.Kind() != reflect.String {
		return data, nil
	}

	return ParseKind(data.(string))
}

func (c Config) clamped() Config {
	if c.TickIntervalMs <= 0 {
		c.TickIntervalMs = int(defaultTickInterval / time.Millisecond)
	}

	d := c.SurfaceDefaults()
	c.Defaults.BankSize = d.BankSize
	c.Defaults.StripTypes = d.StripTypes.Bits()
	c.Defaults.Feedback = d.Feedback.Bits()
	c.Defaults.GainMode = int(d.GainMode)
	c.Defaults.SendPageSize = d.SendPageSize
	c.Defaults.PluginPageSize = d.PluginPageSize

	return c
}

// SurfaceDefaults is the setup given to surfaces on first contact
func (c Config) SurfaceDefaults() SurfaceConfig {
	return SurfaceConfigFromBits(
		c.Defaults.BankSize,
		c.Defaults.StripTypes,
		c.Defaults.Feedback,
		c.Defaults.GainMode,
		c.Defaults.SendPageSize,
		c.Defaults.PluginPageSize,
	)
}

// EngineConfig derives the engine settings. DebugMode was validated on load.
func (c Config) EngineConfig() EngineConfig {
	mode, _ := ParseDebugMode(c.DebugMode)

	return EngineConfig{
		Defaults:     c.SurfaceDefaults(),
		TickInterval: time.Duration(c.TickIntervalMs) * time.Millisecond,
		DebugMode:    mode,
	}
}

func (cc *ConfigManager) onConfigReloaded() {
	cc.logger.Debug("Notifying consumers about configuration reload")

	for _, consumer := range cc.reloadConsumers {
		consumer <- true
	}
}
