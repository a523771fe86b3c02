package config

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	_defaultConfigFilePaths   = []string{".", "$CONFIG_DIR/"}
	_defaultLogZapOutputPaths = []string{"stderr"}
)

const (
	_envPrefix = "IDGEN"

	_defaultCount       = 1
	_defaultConcurrency = 1

	_defaultLogLevel            = "INFO"
	_defaultLogZapEncoding      = "json"
	_defaultLogEnableRotation   = false
	_defaultLogRotateMaxSize    = 64
	_defaultLogRotateMaxAge     = 180
	_defaultLogRotateMaxBackups = 0
	_defaultLogRotateLocalTime  = false
	_defaultLogRotateCompress   = false
)

// Config is the configuration for [server.Server]
type Config struct {
	Log       *Log
	Storage   *Storage
	Allocator *Allocator

	// Count is the number of ids allocated by the command line tool.
	Count int
	// Concurrency is the number of goroutines allocating ids in the command line tool.
	Concurrency int

	lg *zap.Logger
}

// NewConfig creates a new config.
func NewConfig(arguments []string, errOutput io.Writer) (*Config, error) {
	cfg := &Config{}
	cfg.Log = NewLog()
	cfg.Storage = NewStorage()
	cfg.Allocator = NewAllocator()

	v := newViper()
	fs := newFlagSet(errOutput)
	configure(v, fs)

	// parse from command line
	fs.String("config", "", "configuration file")
	err := fs.Parse(arguments)
	if err != nil {
		return nil, err
	}

	// read configuration from file
	c, _ := fs.GetString("config")
	v.SetConfigFile(c)
	err = v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "read configuration file")
		}
	}

	// set config
	err = v.Unmarshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal configuration")
	}

	// new and set logger (first thing after configuration loaded)
	err = cfg.Log.Adjust()
	if err != nil {
		return nil, errors.Wrap(err, "adjust log config")
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return nil, errors.Wrap(err, "create logger")
	}
	cfg.lg = logger

	if configFile := v.ConfigFileUsed(); configFile != "" {
		logger.Debug("load configuration from file", zap.String("file-name", configFile))
	}

	return cfg, nil
}

// Adjust generates default values for some fields (if they are empty)
func (c *Config) Adjust() error {
	if err := c.Storage.Adjust(); err != nil {
		return errors.Wrap(err, "adjust storage config")
	}
	return nil
}

// Validate checks whether the configuration is valid. It should be called after Adjust
func (c *Config) Validate() error {
	if c.Count < 0 {
		return errors.Errorf("invalid count `%d`", c.Count)
	}
	if c.Concurrency <= 0 {
		return errors.Errorf("invalid concurrency `%d`", c.Concurrency)
	}

	if err := c.Storage.Validate(); err != nil {
		return errors.Wrap(err, "validate storage config")
	}

	if err := c.Allocator.Validate(); err != nil {
		return errors.Wrap(err, "validate allocator config")
	}

	return nil
}

// Logger returns logger generated based on the config
// It can be used after calling NewConfig
func (c *Config) Logger() *zap.Logger {
	if c != nil {
		return c.lg
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix(_envPrefix)
	v.AutomaticEnv()
	for _, filePath := range _defaultConfigFilePaths {
		v.AddConfigPath(filePath)
	}
	return v
}

func newFlagSet(errOutput io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("idgen", pflag.ContinueOnError)
	fs.SetOutput(errOutput)
	return fs
}

func configure(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Int("count", _defaultCount, "number of ids to allocate")
	fs.Int("concurrency", _defaultConcurrency, "number of goroutines allocating ids")
	_ = v.BindPFlag("count", fs.Lookup("count"))
	_ = v.BindPFlag("concurrency", fs.Lookup("concurrency"))

	logConfigure(v, fs)
	storageConfigure(v, fs)
	allocatorConfigure(v, fs)
}
