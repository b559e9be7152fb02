package config

import (
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/overmesh/dst/pkg/dst/codec"
)

var (
	_defaultConfigFilePaths   = []string{".", "$CONFIG_DIR/"}
	_defaultLogZapOutputPaths = []string{"stderr"}
)

const (
	_envPrefix = "DST"

	_defaultMaxSegmentSize = 1400
	_defaultAckDelayCap    = 25 * time.Millisecond

	// the smallest segment that still fits a header and a minimal ack frame
	_minSegmentSize = 64

	_defaultLogLevel            = "INFO"
	_defaultLogZapEncoding      = "json"
	_defaultLogEnableRotation   = false
	_defaultLogRotateMaxSize    = 64
	_defaultLogRotateMaxAge     = 180
	_defaultLogRotateMaxBackups = 0
	_defaultLogRotateLocalTime  = false
	_defaultLogRotateCompress   = false
)

// Config is the tuning surface of the transport core.
type Config struct {
	Log *Log

	// MaxSegmentSize is the byte budget a serialized ack frame must fit
	// within, handed to ack.Frame.AdjustForMSS.
	MaxSegmentSize int

	// AckDelayCap bounds the ack delay advertised in ack frames.
	AckDelayCap time.Duration

	lg *zap.Logger
}

// NewConfig creates a config from command-line arguments, environment
// variables and an optional configuration file, in ascending priority order.
func NewConfig(arguments []string, errOutput io.Writer) (*Config, error) {
	cfg := &Config{}
	cfg.Log = NewLog()

	v := newViper()
	fs := newFlagSet(errOutput)
	configure(v, fs)

	fs.String("config", "", "configuration file")
	err := fs.Parse(arguments)
	if err != nil {
		return nil, err
	}

	c, _ := fs.GetString("config")
	v.SetConfigFile(c)
	err = v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "read configuration file")
		}
	}

	err = v.Unmarshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal configuration")
	}

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

// Validate checks whether the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxSegmentSize < _minSegmentSize {
		return errors.Errorf("max segment size %d below minimum %d", c.MaxSegmentSize, _minSegmentSize)
	}
	if c.MaxSegmentSize > codec.MaxMessageLen {
		return errors.Errorf("max segment size %d above maximum message length %d", c.MaxSegmentSize, codec.MaxMessageLen)
	}
	if c.AckDelayCap < 0 {
		return errors.Errorf("negative ack delay cap %s", c.AckDelayCap)
	}
	return nil
}

// Logger returns the logger generated based on the config.
// It can be used after calling NewConfig.
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
	fs := pflag.NewFlagSet("dst", pflag.ContinueOnError)
	fs.SetOutput(errOutput)
	return fs
}

func configure(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Int("max-segment-size", _defaultMaxSegmentSize, "byte budget a serialized ack frame must fit within")
	fs.Duration("ack-delay-cap", _defaultAckDelayCap, "upper bound on the ack delay advertised in ack frames")
	_ = v.BindPFlag("maxSegmentSize", fs.Lookup("max-segment-size"))
	_ = v.BindPFlag("ackDelayCap", fs.Lookup("ack-delay-cap"))

	logConfigure(v, fs)
}
