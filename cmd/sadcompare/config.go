package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tinytelemetry/sadcompare/internal/model"
	"github.com/tinytelemetry/sadcompare/internal/store"
)

const (
	defaultDBDriver     = store.DriverDuckDB
	defaultSnapshotKeep = 10
	defaultLogEnv       = "local"
	defaultLogLevel     = "info"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Reprocess      bool          `mapstructure:"reprocess"`
	DataDir        string        `mapstructure:"data-dir"`
	DBPath         string        `mapstructure:"db-path"`
	DBDriver       string        `mapstructure:"db-driver"`
	Datasets       []string      `mapstructure:"datasets"`
	Workers        int           `mapstructure:"workers"`
	ChartsDir      string        `mapstructure:"charts-dir"`
	NoCharts       bool          `mapstructure:"no-charts"`
	NoProcessed    bool          `mapstructure:"no-processed"`
	SnapshotDir    string        `mapstructure:"snapshot-dir"`
	SnapshotKeep   int           `mapstructure:"snapshot-keep"`
	SnapshotBucket string        `mapstructure:"snapshot-bucket"`
	S3Endpoint     string        `mapstructure:"s3-endpoint"`
	S3Region       string        `mapstructure:"s3-region"`
	S3UseSSL       bool          `mapstructure:"s3-use-ssl"`
	APIAddr        string        `mapstructure:"api-addr"`
	MetricsPushURL string        `mapstructure:"metrics-push-url"`
	QueryTimeout   time.Duration `mapstructure:"query-timeout"`
	LogEnv         string        `mapstructure:"log-env"`
	LogLevel       string        `mapstructure:"log-level"`
	ConfigPath     string        `mapstructure:"-"` // not from config file
}

// registerFlags declares every configuration flag. Each flag name is also the
// config file key and, upper-cased with an SADCOMPARE_ prefix, the env var.
func registerFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default is $HOME/.config/sadcompare/config.yml)")
	fs.Bool("reprocess", false, "re-import and reduce the dataset files before reporting")
	fs.String("data-dir", model.DefaultDataDir, "directory holding the <dataset>_dist_test.csv and <dataset>_likelihoods.csv files")
	fs.String("db-path", "", "result database file (default <data-dir>/sad_results.<driver>)")
	fs.String("db-driver", defaultDBDriver, "result database driver: duckdb or sqlite")
	fs.StringSlice("datasets", model.DefaultDatasets, "dataset codes to process")
	fs.Int("workers", model.DefaultWorkers, "datasets processed in parallel")
	fs.String("charts-dir", "", "chart output directory (default <data-dir>/charts)")
	fs.Bool("no-charts", false, "skip PNG chart rendering")
	fs.Bool("no-processed", false, "skip writing <dataset>_processed_results.csv files")
	fs.String("snapshot-dir", "", "keep a copy of the database here after each successful batch")
	fs.Int("snapshot-keep", defaultSnapshotKeep, "snapshots retained in snapshot-dir")
	fs.String("snapshot-bucket", "", "upload snapshots to s3://bucket/prefix with the aws CLI")
	fs.String("s3-endpoint", "", "custom S3 endpoint for snapshot uploads")
	fs.String("s3-region", "", "S3 region for snapshot uploads")
	fs.Bool("s3-use-ssl", true, "use https for a custom S3 endpoint")
	fs.String("api-addr", model.DefaultAPIAddr, "query API listen address (serve)")
	fs.String("metrics-push-url", "", "Prometheus Pushgateway to push batch metrics to after --reprocess")
	fs.Duration("query-timeout", model.DefaultQueryTimeout, "per-query timeout")
	fs.String("log-env", defaultLogEnv, "log format: local, dev or prod")
	fs.String("log-level", defaultLogLevel, "log level: debug, info, warn or error")
}

func loadConfig(flags *pflag.FlagSet) (appConfig, error) {
	var cfg appConfig

	v := viper.New()
	v.SetEnvPrefix("SADCOMPARE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("reprocess", false)
	v.SetDefault("data-dir", model.DefaultDataDir)
	v.SetDefault("db-driver", defaultDBDriver)
	v.SetDefault("datasets", model.DefaultDatasets)
	v.SetDefault("workers", model.DefaultWorkers)
	v.SetDefault("snapshot-keep", defaultSnapshotKeep)
	v.SetDefault("s3-use-ssl", true)
	v.SetDefault("api-addr", model.DefaultAPIAddr)
	v.SetDefault("query-timeout", model.DefaultQueryTimeout)
	v.SetDefault("log-env", defaultLogEnv)
	v.SetDefault("log-level", defaultLogLevel)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return cfg, fmt.Errorf("binding flags: %w", err)
		}
	}

	configPath := v.GetString("config")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".config", "sadcompare", "config.yml"))
	}

	loaded := true
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
		// An explicitly requested file must exist.
		if configPath != "" {
			return cfg, fmt.Errorf("config file %s: %w", configPath, err)
		}
		loaded = false
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if loaded {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	return cfg, cfg.normalize()
}

func (cfg *appConfig) normalize() error {
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if cfg.DBDriver != store.DriverDuckDB && cfg.DBDriver != store.DriverSQLite {
		return fmt.Errorf("invalid db-driver %q (want duckdb or sqlite)", cfg.DBDriver)
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("invalid workers: %d", cfg.Workers)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("data-dir is required")
	}

	datasets := make([]string, 0, len(cfg.Datasets))
	for _, d := range cfg.Datasets {
		if d = strings.TrimSpace(d); d != "" {
			datasets = append(datasets, d)
		}
	}
	if len(datasets) == 0 {
		return fmt.Errorf("at least one dataset is required")
	}
	cfg.Datasets = datasets

	cfg.DataDir = expandHome(cfg.DataDir)
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "sad_results."+cfg.DBDriver)
	}
	cfg.DBPath = expandHome(cfg.DBPath)
	if cfg.ChartsDir == "" {
		cfg.ChartsDir = filepath.Join(cfg.DataDir, "charts")
	}
	cfg.ChartsDir = expandHome(cfg.ChartsDir)
	cfg.SnapshotDir = expandHome(cfg.SnapshotDir)
	cfg.MetricsPushURL = strings.TrimSpace(cfg.MetricsPushURL)
	return nil
}

// expandHome expands a leading ~/ in path.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
