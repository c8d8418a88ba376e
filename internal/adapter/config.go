package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/mmcdole/teensyrom/internal/domain"
)

var validate = validator.New()

// Config holds all application configuration
type Config struct {
	Serial   SerialConfig   `mapstructure:"serial"`
	Device   DeviceConfig   `mapstructure:"device"`
	Protocol ProtocolConfig `mapstructure:"protocol"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SerialConfig selects the port. An empty port means auto-detect.
type SerialConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud" validate:"gt=0"`
}

// DeviceConfig holds where things live on the cartridge
type DeviceConfig struct {
	Storage       string            `mapstructure:"storage" validate:"oneof=sd usb SD USB"`
	RootPath      string            `mapstructure:"root_path" validate:"required,startswith=/"`
	FavoritesPath string            `mapstructure:"favorites_path" validate:"required,startswith=/"`
	Folders       map[string]string `mapstructure:"folders"` // kind -> subfolder of root_path
}

// ProtocolConfig holds the handshake timing windows
type ProtocolConfig struct {
	AckTimeout      time.Duration `mapstructure:"ack_timeout" validate:"gt=0"`
	DrainWindow     time.Duration `mapstructure:"drain_window" validate:"gt=0"`
	ResponseWindow  time.Duration `mapstructure:"response_window" validate:"gt=0"`
	ListTimeout     time.Duration `mapstructure:"list_timeout" validate:"gt=0"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout" validate:"gt=0"`
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	ListCount       int           `mapstructure:"list_count" validate:"gt=0,lte=65535"`
}

// CacheConfig controls snapshot persistence
type CacheConfig struct {
	Persist bool   `mapstructure:"persist"`
	Path    string `mapstructure:"path"`
}

// WatchConfig configures auto-transfer from a local folder
type WatchConfig struct {
	Directory  string        `mapstructure:"directory"`
	Extensions []string      `mapstructure:"extensions"`
	Debounce   time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

// MetricsConfig holds the Prometheus listen address. Empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Baud: 115200,
		},
		Device: DeviceConfig{
			Storage:       "sd",
			RootPath:      "/sync",
			FavoritesPath: "/favorites",
			Folders: map[string]string{
				"sid": "sid",
				"prg": "prg",
				"crt": "crt",
				"hex": "hex",
			},
		},
		Protocol: ProtocolConfig{
			AckTimeout:      500 * time.Millisecond,
			DrainWindow:     100 * time.Millisecond,
			ResponseWindow:  100 * time.Millisecond,
			ListTimeout:     10 * time.Second,
			TransferTimeout: 5 * time.Second,
			PollInterval:    20 * time.Millisecond,
			ListCount:       9999,
		},
		Cache: CacheConfig{
			Persist: true,
			Path:    defaultCachePath(),
		},
		Watch: WatchConfig{
			Extensions: []string{"sid", "prg", "crt", "hex"},
			Debounce:   500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "teensyrom", "teensyrom.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "teensyrom", "teensyrom.log")
	}
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "teensyrom")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "teensyrom")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "teensyrom", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "teensyrom", "cache")
	}
}

// setDefaults registers every key so environment overrides apply even when
// no config file mentions it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("serial.port", cfg.Serial.Port)
	v.SetDefault("serial.baud", cfg.Serial.Baud)

	v.SetDefault("device.storage", cfg.Device.Storage)
	v.SetDefault("device.root_path", cfg.Device.RootPath)
	v.SetDefault("device.favorites_path", cfg.Device.FavoritesPath)
	v.SetDefault("device.folders", cfg.Device.Folders)

	v.SetDefault("protocol.ack_timeout", cfg.Protocol.AckTimeout)
	v.SetDefault("protocol.drain_window", cfg.Protocol.DrainWindow)
	v.SetDefault("protocol.response_window", cfg.Protocol.ResponseWindow)
	v.SetDefault("protocol.list_timeout", cfg.Protocol.ListTimeout)
	v.SetDefault("protocol.transfer_timeout", cfg.Protocol.TransferTimeout)
	v.SetDefault("protocol.poll_interval", cfg.Protocol.PollInterval)
	v.SetDefault("protocol.list_count", cfg.Protocol.ListCount)

	v.SetDefault("cache.persist", cfg.Cache.Persist)
	v.SetDefault("cache.path", cfg.Cache.Path)

	v.SetDefault("watch.directory", cfg.Watch.Directory)
	v.SetDefault("watch.extensions", cfg.Watch.Extensions)
	v.SetDefault("watch.debounce", cfg.Watch.Debounce)

	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

// LoadConfig loads configuration from file and environment into v. When
// configFile is empty the default locations are searched.
func LoadConfig(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	// Environment variable overrides, e.g. TEENSYROM_SERIAL_PORT
	v.SetEnvPrefix("TEENSYROM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	for kind, folder := range cfg.Device.Folders {
		if domain.ParseFileKind(kind) == domain.KindUnknown {
			return fmt.Errorf("device.folders: unknown file kind %q", kind)
		}
		if strings.Contains(strings.Trim(folder, "/"), "/") {
			return fmt.Errorf("device.folders.%s: %q must be a single folder name", kind, folder)
		}
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// Target builds the device settings snapshot handed to services.
func (c *Config) Target() (domain.Target, error) {
	storage, err := domain.ParseStorageType(c.Device.Storage)
	if err != nil {
		return domain.Target{}, err
	}
	folders := make(map[domain.FileKind]string, len(c.Device.Folders))
	for kind, folder := range c.Device.Folders {
		folders[domain.ParseFileKind(kind)] = strings.Trim(folder, "/")
	}
	return domain.Target{
		Storage:       storage,
		RootPath:      c.Device.RootPath,
		FavoritesPath: c.Device.FavoritesPath,
		KindFolders:   folders,
	}, nil
}

// ClearCache removes all persisted cache snapshots
func ClearCache(path string) error {
	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
