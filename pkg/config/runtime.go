package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables read by the runtime settings.
const EnvPrefix = "STREAMGUARD"

// Runtime holds process settings that are not part of detection.
type Runtime struct {
	Log      LogSettings
	Store    StoreSettings
	Metrics  MetricsSettings
	Batch    BatchSettings
	Instance InstanceSettings
}

// LogSettings configures the process logger.
type LogSettings struct {
	Level  string
	Format string
	File   string
}

// StoreSettings configures model persistence.
type StoreSettings struct {
	// DSN is a file path, or "sqlite://<path>" for the sqlite store.
	DSN string
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Addr string
}

// BatchSettings configures input batching.
type BatchSettings struct {
	Size     int
	Interval Duration
}

// InstanceSettings configures detector instance naming.
type InstanceSettings struct {
	Prefix string
}

// DefaultRuntime returns the default runtime settings.
func DefaultRuntime() Runtime {
	return Runtime{
		Log:      LogSettings{Level: "info", Format: "console"},
		Batch:    BatchSettings{Size: 60, Interval: Duration(time.Minute)},
		Instance: InstanceSettings{Prefix: "algorithm_"},
	}
}

// NewViper returns a viper instance with runtime defaults, environment
// binding and, when path is set, the runtime file loaded. A missing file is
// not an error.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setRuntimeDefaults(v)

	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read runtime config: %w", err)
		}
	}
	return v, nil
}

func setRuntimeDefaults(v *viper.Viper) {
	d := DefaultRuntime()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("batch.size", d.Batch.Size)
	v.SetDefault("batch.interval", d.Batch.Interval.String())
	v.SetDefault("instance.prefix", d.Instance.Prefix)
}

// RuntimeFrom reads the runtime settings out of v.
func RuntimeFrom(v *viper.Viper) (Runtime, error) {
	var r Runtime
	r.Log.Level = v.GetString("log.level")
	r.Log.Format = v.GetString("log.format")
	r.Log.File = v.GetString("log.file")
	r.Store.DSN = v.GetString("store.dsn")
	r.Metrics.Addr = v.GetString("metrics.addr")
	r.Batch.Size = v.GetInt("batch.size")
	r.Instance.Prefix = v.GetString("instance.prefix")

	interval, err := ParseDuration(v.GetString("batch.interval"))
	if err != nil {
		return Runtime{}, &ValidationError{Field: "batch.interval", Message: err.Error()}
	}
	r.Batch.Interval = interval

	if r.Batch.Size <= 0 {
		return Runtime{}, invalid("batch.size", "must be positive")
	}
	if r.Instance.Prefix == "" {
		return Runtime{}, invalid("instance.prefix", "required")
	}
	return r, nil
}
