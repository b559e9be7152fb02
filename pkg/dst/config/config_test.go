package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	re := require.New(t)

	cfg, err := NewConfig([]string{}, io.Discard)
	re.NoError(err)

	re.Equal(1400, cfg.MaxSegmentSize)
	re.Equal(25*time.Millisecond, cfg.AckDelayCap)
	re.Equal("INFO", cfg.Log.Level)
	re.NotNil(cfg.Logger())
	re.NoError(cfg.Validate())
}

func TestConfigFromFlags(t *testing.T) {
	re := require.New(t)

	cfg, err := NewConfig([]string{
		"--max-segment-size", "9000",
		"--ack-delay-cap", "5ms",
		"--log-level", "DEBUG",
	}, io.Discard)
	re.NoError(err)

	re.Equal(9000, cfg.MaxSegmentSize)
	re.Equal(5*time.Millisecond, cfg.AckDelayCap)
	re.Equal("DEBUG", cfg.Log.Level)
}

func TestConfigFromFile(t *testing.T) {
	re := require.New(t)

	path := filepath.Join(t.TempDir(), "dst.yaml")
	re.NoError(os.WriteFile(path, []byte("maxSegmentSize: 576\nackDelayCap: 1ms\n"), 0o644))

	cfg, err := NewConfig([]string{"--config", path}, io.Discard)
	re.NoError(err)

	re.Equal(576, cfg.MaxSegmentSize)
	re.Equal(time.Millisecond, cfg.AckDelayCap)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
		errMsg string
	}{
		{
			name:   "segment size below minimum",
			mutate: func(cfg *Config) { cfg.MaxSegmentSize = 32 },
			errMsg: "below minimum",
		},
		{
			name:   "segment size above maximum",
			mutate: func(cfg *Config) { cfg.MaxSegmentSize = 1 << 20 },
			errMsg: "above maximum",
		},
		{
			name:   "negative ack delay cap",
			mutate: func(cfg *Config) { cfg.AckDelayCap = -time.Second },
			errMsg: "negative ack delay cap",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			re := require.New(t)

			cfg, err := NewConfig([]string{}, io.Discard)
			re.NoError(err)
			tt.mutate(cfg)

			err = cfg.Validate()
			re.Error(err)
			re.Contains(err.Error(), tt.errMsg)
		})
	}
}

func TestInvalidLogLevel(t *testing.T) {
	re := require.New(t)

	_, err := NewConfig([]string{"--log-level", "SHOUTING"}, io.Discard)
	re.Error(err)
	re.Contains(err.Error(), "parse log level")
}
