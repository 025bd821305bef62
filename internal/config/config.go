package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"collector/internal/etl"
)

// EnvPrefix prefixes every environment variable read by Apply:
// --db-timeout is COLLECTOR_DB_TIMEOUT.
const EnvPrefix = "COLLECTOR"

// Config holds the process-wide settings of the collector.
type Config struct {
	DataDir     string
	DBPath      string
	LogLevel    string
	LogFormat   string
	HTTPTimeout time.Duration
	DBTimeout   time.Duration
	RunTimeout  time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	FlushRows   int
	FlushPages  int
	SampleLen   int
	Debounce    time.Duration
	MetricsAddr string
}

// Default returns a Config with the defaults used when nothing is set.
func Default() *Config {
	dataDir := defaultDataDir()
	limits := etl.DefaultLimits()
	return &Config{
		DataDir:     dataDir,
		LogLevel:    "info",
		LogFormat:   "text",
		HTTPTimeout: 30 * time.Second,
		DBTimeout:   30 * time.Second,
		RunTimeout:  0,
		MaxRetries:  limits.MaxRetries,
		RetryDelay:  limits.RetryDelay,
		FlushRows:   limits.FlushRows,
		FlushPages:  limits.FlushPages,
		SampleLen:   limits.SampleLen,
		Debounce:    500 * time.Millisecond,
		MetricsAddr: ":9464",
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "collector")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".collector"
	}
	return filepath.Join(home, ".local", "share", "collector")
}

// Flags registers every setting on fs, bound to c. The current values of c
// become the flag defaults.
func (c *Config) Flags(fs *pflag.FlagSet) {
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "Directory for collector state.")
	fs.StringVar(&c.DBPath, "db-path", c.DBPath, "SQLite file holding runs, run logs and connections (default <data-dir>/collector.db).")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn or error.")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: text or json.")
	fs.DurationVar(&c.HTTPTimeout, "http-timeout", c.HTTPTimeout, "Timeout of a single HTTP request.")
	fs.DurationVar(&c.DBTimeout, "db-timeout", c.DBTimeout, "Timeout of a single database query or statement.")
	fs.DurationVar(&c.RunTimeout, "run-timeout", c.RunTimeout, "Upper bound on one run execution (0 for none).")
	fs.IntVar(&c.MaxRetries, "max-retries", c.MaxRetries, "Retries per page after the first attempt.")
	fs.DurationVar(&c.RetryDelay, "retry-delay", c.RetryDelay, "Wait between attempts.")
	fs.IntVar(&c.FlushRows, "flush-rows", c.FlushRows, "Flush once the batch holds more rows than this.")
	fs.IntVar(&c.FlushPages, "flush-pages", c.FlushPages, "Flush after this many pages.")
	fs.IntVar(&c.SampleLen, "sample-len", c.SampleLen, "Characters of the first statement kept in flush log entries.")
	fs.DurationVar(&c.Debounce, "debounce", c.Debounce, "Quiet period before a file_watch trigger fires.")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Listen address of the /metrics endpoint.")
}

// Apply takes flags as the definition of all configuration options and
// fills them from, in priority order, the command line, COLLECTOR_*
// environment variables and the YAML file named by the "config" flag.
// Since each flag points at its field, the bound Config is updated in place.
func Apply(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	validTags := make(map[string]bool)
	flags.VisitAll(func(f *pflag.Flag) { validTags[f.Name] = true })

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %v", path, err)
		}
		for _, key := range v.AllKeys() {
			if !validTags[key] {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		flagErr = f.Value.Set(v.GetString(f.Name))
	})
	return flagErr
}

// Validate reports settings the collector cannot start with.
func (c *Config) Validate() error {
	if c.DataDir == "" && c.DBPath == "" {
		return fmt.Errorf("data-dir or db-path is required")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log-format must be text or json, got %q", c.LogFormat)
	}
	if c.MaxRetries < 0 || c.FlushRows <= 0 || c.FlushPages <= 0 {
		return fmt.Errorf("max-retries must be >= 0, flush-rows and flush-pages > 0")
	}
	return nil
}

// DatabasePath returns DBPath, defaulting to a file inside DataDir.
func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "collector.db")
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("log-level: %w", err)
	}
	return l, nil
}

// Limits returns the collector limits described by c.
func (c *Config) Limits() etl.Limits {
	return etl.Limits{
		MaxRetries: c.MaxRetries,
		RetryDelay: c.RetryDelay,
		FlushRows:  c.FlushRows,
		FlushPages: c.FlushPages,
		SampleLen:  c.SampleLen,
	}
}

// NewLogger builds the process logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := c.Level()
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Write prints the settings in flags as a YAML config file that Apply
// accepts back. Hidden flags and "config" itself are skipped.
func Write(w io.Writer, flags *pflag.FlagSet) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == "config" {
			return
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: f.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: f.Value.String()},
		)
	})
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
