package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Markfds01/shine-switchpoints/internal/switchrate"
)

// EnvPrefix prefixes every environment variable, e.g. SHINE_REGION.
const EnvPrefix = "SHINE"

// NewFlagSet declares every configuration key as a flag.
func NewFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SortFlags = false

	fs.String("config", "", "YAML configuration file")
	fs.StringP("region", "r", "", "Spanish community code, Spain, or an OWID country name")
	fs.IntP("n-switchpoints", "n", 1, "Number of switchpoints")
	fs.BoolP("weekly", "w", false, "Use the weekly binomial model")
	fs.BoolP("deaths", "d", false, "Model deaths instead of hospital admissions")
	fs.Bool("estimate-switchpoints", false, "Sample the switchpoints of the daily model instead of fixing them")
	fs.Bool("ages", false, "Fit each age group separately")
	fs.String("stage", StageAll, "Stage to run: train, switchpoints or all")

	fs.String("train-start", "", "First day of the training window (YYYY-MM-DD)")
	fs.String("train-end", "", "Last day of the training window")
	fs.String("switch-start", "", "First day of the switchpoint window")
	fs.String("switch-end", "", "Last day of the switchpoint window")

	fs.Int("draws", 0, "Kept draws per chain, 0 for the variant default")
	fs.Int("tune", 0, "Tuning iterations per chain, 0 for the variant default")
	fs.Float64("target-accept", 0, "Target acceptance probability, 0 for the variant default")
	fs.Int("chains", 4, "Number of chains")
	fs.Uint64("seed", 1, "Random seed")
	fs.Bool("find-map", false, "Start the chains from the posterior mode")
	fs.String("init", InitDefault, "Initial regime rates: default or least-squares")
	fs.Float64("delay-rate", 0, "Fixed delay rate for the switchpoint stage, 0 to train it")
	fs.String("regime-layout", switchrate.ReverseChronological.String(), "Regime order of the rate vector: reverse (rates[K] first) or chronological (rates[0] first)")

	fs.String("data-dir", "data", "Directory holding the source CSV files")
	fs.String("output-dir", "results", "Directory for draws, summaries and plots")
	fs.Bool("plot", false, "Render fan charts with gnuplot when available")
	fs.String("log-level", "info", "info, debug, trace or a verbosity number")
	fs.String("metrics-file", "", "Write sampler metrics to this file in Prometheus text format")
	fs.String("postgres-dsn", "", "Also store posterior summaries in this Postgres database")
	return fs
}

// Load parses args and resolves the configuration.
// Precedence: flags > env > config file > defaults.
// Returns flag.ErrHelp unwrapped when help was requested.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet("shine")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Bind pflag flags (unchanged flags act as defaults)
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	// Load the config file, between env and defaults in precedence
	if path := v.GetString("config"); path != "" {
		if err := mergeFile(v, path); err != nil {
			return nil, err
		}
	}

	cfg, err := resolve(v)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile reads a YAML file whose keys are the flag names.
func mergeFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	settings := make(map[string]any)
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}
	return v.MergeConfigMap(settings)
}

func resolve(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Region:               v.GetString("region"),
		NSwitchpoints:        v.GetInt("n-switchpoints"),
		Weekly:               v.GetBool("weekly"),
		Deaths:               v.GetBool("deaths"),
		EstimateSwitchpoints: v.GetBool("estimate-switchpoints"),
		Ages:                 v.GetBool("ages"),
		Stage:                strings.ToLower(v.GetString("stage")),
		Draws:                v.GetInt("draws"),
		Tune:                 v.GetInt("tune"),
		TargetAccept:         v.GetFloat64("target-accept"),
		Chains:               v.GetInt("chains"),
		Seed:                 v.GetUint64("seed"),
		FindMAP:              v.GetBool("find-map"),
		Init:                 strings.ToLower(v.GetString("init")),
		DelayRate:            v.GetFloat64("delay-rate"),
		DataDir:              v.GetString("data-dir"),
		OutputDir:            v.GetString("output-dir"),
		Plot:                 v.GetBool("plot"),
		LogLevel:             v.GetString("log-level"),
		MetricsFile:          v.GetString("metrics-file"),
		PostgresDSN:          v.GetString("postgres-dsn"),
	}

	layout, err := switchrate.ParseLayout(v.GetString("regime-layout"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.Layout = layout

	dates := []struct {
		key string
		dst *time.Time
	}{
		{"train-start", &cfg.TrainStart},
		{"train-end", &cfg.TrainEnd},
		{"switch-start", &cfg.SwitchStart},
		{"switch-end", &cfg.SwitchEnd},
	}
	for _, d := range dates {
		s := strings.TrimSpace(v.GetString(d.key))
		if s == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, d.key, err)
		}
		*d.dst = t
	}
	return cfg, nil
}
