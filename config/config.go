// Package config holds the pipeline's internal tunables — queue depths, the
// MSS constant, log level and the metrics/debug-capture toggles — loaded
// with spf13/viper layered over spf13/pflag-registered flags, the way
// sun977-NeoScan/neoAgent layers viper over flag-registered tunables. This
// is deliberately narrow: spec.md §1 places "any CLI/configuration glue"
// out of scope as an external collaborator, so this package stops at a
// Config value and does not grow into protocol/decoder-selection flags.
package config

import (
	"go.uber.org/zap/zapcore"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// MSS is the compile-time maximum segment size congestion-window growth is
// measured against (spec.md GLOSSARY, §4.6.a slow-start).
const MSS = 1460

// Config holds every tunable the pipeline reads at startup. Field order
// grouped by concern rather than alphabetically, matching the teacher's
// convention of grouping struct fields by what they configure.
type Config struct {
	// Queue depths, minima per spec.md §5.
	DataQueueDepth         int
	ChecksumBufferDepth    int
	MetaQueueDepth         int
	NotificationQueueDepth int

	MSS int

	LogLevel string

	MetricsEnabled bool
	DebugCaptureDir string
}

// Default returns a Config meeting every §5 minimum.
func Default() Config {
	return Config{
		DataQueueDepth:         8,
		ChecksumBufferDepth:    256,
		MetaQueueDepth:         2,
		NotificationQueueDepth: 32,
		MSS:                    MSS,
		LogLevel:               "info",
		MetricsEnabled:         true,
	}
}

// FlagSet registers the tunables onto a pflag.FlagSet for a host process
// that wants to expose them on its own command line, without rxtoe itself
// owning a CLI.
func FlagSet() (*pflag.FlagSet, *Config) {
	cfg := Default()

	fs := pflag.NewFlagSet("rxtoe", pflag.ContinueOnError)
	fs.IntVar(&cfg.DataQueueDepth, "rxtoe.data-queue-depth", cfg.DataQueueDepth, "depth of inter-stage data queues")
	fs.IntVar(&cfg.ChecksumBufferDepth, "rxtoe.checksum-buffer-depth", cfg.ChecksumBufferDepth, "depth of the checksum-stage packet buffer")
	fs.IntVar(&cfg.MetaQueueDepth, "rxtoe.meta-queue-depth", cfg.MetaQueueDepth, "depth of metadata/tuple/length queues")
	fs.IntVar(&cfg.NotificationQueueDepth, "rxtoe.notification-queue-depth", cfg.NotificationQueueDepth, "depth of the notification-delayer buffer")
	fs.IntVar(&cfg.MSS, "rxtoe.mss", cfg.MSS, "maximum segment size for congestion-window growth")
	fs.StringVar(&cfg.LogLevel, "rxtoe.log-level", cfg.LogLevel, "zap log level (debug|info|warn|error)")
	fs.BoolVar(&cfg.MetricsEnabled, "rxtoe.metrics", cfg.MetricsEnabled, "export prometheus metrics")
	fs.StringVar(&cfg.DebugCaptureDir, "rxtoe.debug-capture-dir", cfg.DebugCaptureDir, "directory to gzip-dump received payloads to (empty disables)")

	return fs, &cfg
}

// Load layers a viper.Viper over flags registered on fs, reading from
// environment variables prefixed RXTOE_ and, if present, a config file, the
// way neoAgent layers viper over its cobra/pflag-registered tunables.
func Load(fs *pflag.FlagSet, configPath string) (Config, error) {
	def := Default()

	v := viper.New()
	v.SetEnvPrefix("RXTOE")
	v.AutomaticEnv()
	v.SetDefault("rxtoe.data-queue-depth", def.DataQueueDepth)
	v.SetDefault("rxtoe.checksum-buffer-depth", def.ChecksumBufferDepth)
	v.SetDefault("rxtoe.meta-queue-depth", def.MetaQueueDepth)
	v.SetDefault("rxtoe.notification-queue-depth", def.NotificationQueueDepth)
	v.SetDefault("rxtoe.mss", def.MSS)
	v.SetDefault("rxtoe.log-level", def.LogLevel)
	v.SetDefault("rxtoe.metrics", def.MetricsEnabled)
	v.SetDefault("rxtoe.debug-capture-dir", def.DebugCaptureDir)

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, err
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	return Config{
		DataQueueDepth:         v.GetInt("rxtoe.data-queue-depth"),
		ChecksumBufferDepth:    v.GetInt("rxtoe.checksum-buffer-depth"),
		MetaQueueDepth:         v.GetInt("rxtoe.meta-queue-depth"),
		NotificationQueueDepth: v.GetInt("rxtoe.notification-queue-depth"),
		MSS:                    v.GetInt("rxtoe.mss"),
		LogLevel:               v.GetString("rxtoe.log-level"),
		MetricsEnabled:         v.GetBool("rxtoe.metrics"),
		DebugCaptureDir:        v.GetString("rxtoe.debug-capture-dir"),
	}, nil
}

// ParseLevel converts a Config.LogLevel string to a zapcore.Level, defaulting
// to Info on an unrecognized value.
func ParseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}

	return l
}
