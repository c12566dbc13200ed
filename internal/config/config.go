package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/fsutil"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for config files and directories
	AppName = "mrimg-restore"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "MRIMG_RESTORE"

	// DefaultMaxPayloadBytes bounds a single metadata block payload. Track 0
	// is 1 MiB on typical disks; JSON layouts are far smaller.
	DefaultMaxPayloadBytes = 64 << 20

	// DefaultMaxOpenFiles bounds the per-partition backup file handle table
	DefaultMaxOpenFiles = 16
)

// AppConfig holds the application configuration
type AppConfig struct {
	// Core settings
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Restore settings
	Restore struct {
		OutputDir    string `mapstructure:"output_dir"`
		ImageName    string `mapstructure:"image_name"` // fmt pattern, receives the disk index
		DiskIndex    int    `mapstructure:"disk_index"` // -1 restores every disk
		Compression  string `mapstructure:"compression"`
		Digest       string `mapstructure:"digest"`
		Mount        bool   `mapstructure:"mount"`
		MaxOpenFiles int    `mapstructure:"max_open_files"`
	} `mapstructure:"restore"`

	// Parser settings
	Parser struct {
		MaxPayloadBytes int64 `mapstructure:"max_payload_bytes"`
	} `mapstructure:"parser"`

	// Inspect settings
	Inspect struct {
		Format string `mapstructure:"format"` // summary, json, plist
	} `mapstructure:"inspect"`
}

// Global variables
var (
	// Global configuration instance
	Instance AppConfig

	// Status indicators
	ConfigLoaded bool
	ConfigFile   string

	// Viper instance
	v *viper.Viper

	initOnce sync.Once

	// Flags bound to config keys, re-applied whenever viper is rebuilt
	bindings = map[string]*pflag.Flag{}
)

func init() {
	// Usable defaults even when Initialize is never called (tests, library use)
	d := viper.New()
	setDefaults(d)
	_ = d.Unmarshal(&Instance)
}

// Initialize sets up the configuration system
func Initialize(cfgFile string) error {
	var err error

	initOnce.Do(func() {
		err = load(cfgFile)
	})

	return err
}

// Reload re-reads configuration from the given file, bypassing the once guard.
// Used when --config is supplied after start-up.
func Reload(cfgFile string) error {
	return load(cfgFile)
}

func load(cfgFile string) error {
	v = viper.New()

	setDefaults(v)
	applyBindings(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		addSearchPaths(v)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var err error
	if readErr := v.ReadInConfig(); readErr != nil {
		if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
			// Only an error if the file was found but couldn't be read
			err = fmt.Errorf("error reading config file: %w", readErr)
		}
		ConfigLoaded = false
		ConfigFile = ""
	} else {
		ConfigLoaded = true
		ConfigFile = v.ConfigFileUsed()
	}

	if unmarshalErr := v.Unmarshal(&Instance); unmarshalErr != nil {
		return fmt.Errorf("error parsing config: %w", unmarshalErr)
	}

	if vErr := Validate(&Instance); vErr != nil {
		return vErr
	}

	return err
}

// Viper returns the active viper instance, creating an empty one if Initialize was never called
func Viper() *viper.Viper {
	if v == nil {
		v = viper.New()
		setDefaults(v)
		applyBindings(v)
	}
	return v
}

// BindFlag binds a command line flag to a config key. Changed flags take
// precedence over the config file and environment on the next Refresh.
func BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag to bind for %s", key)
	}
	bindings[key] = flag
	return Viper().BindPFlag(key, flag)
}

func applyBindings(v *viper.Viper) {
	for key, flag := range bindings {
		_ = v.BindPFlag(key, flag)
	}
}

// Refresh re-reads Instance from the active viper instance, picking up
// flags parsed after Initialize.
func Refresh() error {
	var c AppConfig
	if err := Viper().Unmarshal(&c); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	if err := Validate(&c); err != nil {
		return err
	}
	Instance = c
	return nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Core settings
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")

	logDir, err := fsutil.GetLogDir(AppName)
	if err == nil {
		v.SetDefault("log_file", filepath.Join(logDir, "restore.log"))
	} else {
		v.SetDefault("log_file", "")
	}

	// Restore defaults
	v.SetDefault("restore.output_dir", ".")
	v.SetDefault("restore.image_name", "disk%d.img")
	v.SetDefault("restore.disk_index", -1)
	v.SetDefault("restore.compression", "none")
	v.SetDefault("restore.digest", "none")
	v.SetDefault("restore.mount", false)
	v.SetDefault("restore.max_open_files", DefaultMaxOpenFiles)

	// Parser defaults
	v.SetDefault("parser.max_payload_bytes", DefaultMaxPayloadBytes)

	// Inspect defaults
	v.SetDefault("inspect.format", "summary")
}

// addSearchPaths adds config search paths
func addSearchPaths(v *viper.Viper) {
	v.AddConfigPath(".")

	configDir, err := fsutil.GetConfigDir(AppName)
	if err == nil {
		v.AddConfigPath(configDir)
	}

	systemConfigDir, err := fsutil.GetSystemConfigDir(AppName)
	if err == nil {
		v.AddConfigPath(systemConfigDir)
	}
}

// Validate checks enumerated settings
func Validate(c *AppConfig) error {
	switch c.LogFormat {
	case "json", "human":
	default:
		return fmt.Errorf("unsupported log_format: %s", c.LogFormat)
	}

	switch c.Restore.Compression {
	case "none", "gzip", "xz", "bzip2":
	default:
		return fmt.Errorf("unsupported restore.compression: %s", c.Restore.Compression)
	}

	switch c.Restore.Digest {
	case "none", "sha256", "blake2b":
	default:
		return fmt.Errorf("unsupported restore.digest: %s", c.Restore.Digest)
	}

	switch c.Inspect.Format {
	case "summary", "json", "plist":
	default:
		return fmt.Errorf("unsupported inspect.format: %s", c.Inspect.Format)
	}

	if c.Parser.MaxPayloadBytes <= 0 {
		return fmt.Errorf("parser.max_payload_bytes must be positive")
	}
	if c.Restore.MaxOpenFiles < 0 {
		return fmt.Errorf("restore.max_open_files must not be negative")
	}
	if !strings.Contains(c.Restore.ImageName, "%d") {
		return fmt.Errorf("restore.image_name must contain %%d for the disk index")
	}

	return nil
}
