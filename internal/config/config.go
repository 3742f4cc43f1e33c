package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/cmeode/internal/ledger"
	"github.com/san-kum/cmeode/internal/species"
)

const (
	DefaultCommTimestep     = 1.0
	DefaultMaxODEStep       = 0.1
	DefaultIntervalDuration = 60.0
	DefaultIntegrator       = "rk45"
	DefaultTolerance        = 1e-6
	DefaultDataDir          = "simulations"
	DefaultReplicates       = 10
	DefaultIntervals        = 20
	DefaultInitIntervals    = 1
	DefaultProgressEvery    = 10

	EnvPrefix = "CMEODE_"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	CommTimestep      float64 `yaml:"comm_timestep"`
	MaxODEStep        float64 `yaml:"max_ode_step"`
	IntervalDuration  float64 `yaml:"interval_duration"`
	UseCompiledSolver bool    `yaml:"use_compiled_solver"`
	Integrator        string  `yaml:"integrator"`
	Tolerance         float64 `yaml:"tolerance"`

	Network string `yaml:"network"`
	Initial string `yaml:"initial"`
	CME     string `yaml:"cme,omitempty"`
	DataDir string `yaml:"data_dir"`

	Seed          int64 `yaml:"seed"`
	Replicates    int   `yaml:"replicates"`
	Intervals     int   `yaml:"intervals"`
	InitIntervals int   `yaml:"init_intervals"`
	Cores         int   `yaml:"cores"`
	ProgressEvery int   `yaml:"progress_every"`

	Ledger *ledger.Accounts `yaml:"ledger,omitempty"`

	// TimecourseCategories limits the timecourse log to these species
	// categories (e.g. metabolite, protein). Empty records every species.
	TimecourseCategories []string `yaml:"timecourse_categories,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		CommTimestep:      DefaultCommTimestep,
		MaxODEStep:        DefaultMaxODEStep,
		IntervalDuration:  DefaultIntervalDuration,
		UseCompiledSolver: true,
		Integrator:        DefaultIntegrator,
		Tolerance:         DefaultTolerance,
		Network:           "configs/network.yaml",
		Initial:           "configs/initial.yaml",
		DataDir:           DefaultDataDir,
		Seed:              1,
		Replicates:        DefaultReplicates,
		Intervals:         DefaultIntervals,
		InitIntervals:     DefaultInitIntervals,
		ProgressEvery:     DefaultProgressEvery,
	}
}

// wholeTicks reports whether d is an integer multiple of dt up to float
// rounding.
func wholeTicks(d, dt float64) bool {
	n := d / dt
	return math.Abs(n-math.Round(n)) <= 1e-9*n
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := LoadInto(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadInto overlays the fields set in the file at path onto cfg.
func LoadInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RecordedCategories parses TimecourseCategories.
func (c *Config) RecordedCategories() ([]species.Category, error) {
	cats := make([]species.Category, 0, len(c.TimecourseCategories))
	for _, name := range c.TimecourseCategories {
		cat, err := species.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		cats = append(cats, cat)
	}
	return cats, nil
}

// Accounts returns the configured cofactor ledger, or the Syn3A default.
func (c *Config) Accounts() ledger.Accounts {
	if c.Ledger != nil {
		return *c.Ledger
	}
	return ledger.DefaultAccounts()
}

func (c *Config) Validate() error {
	switch {
	case c.CommTimestep <= 0:
		return fmt.Errorf("%w: comm_timestep must be positive, got %g", ErrInvalidConfig, c.CommTimestep)
	case c.MaxODEStep <= 0:
		return fmt.Errorf("%w: max_ode_step must be positive, got %g", ErrInvalidConfig, c.MaxODEStep)
	case c.IntervalDuration <= 0:
		return fmt.Errorf("%w: interval_duration must be positive, got %g", ErrInvalidConfig, c.IntervalDuration)
	case c.IntervalDuration < c.CommTimestep:
		return fmt.Errorf("%w: interval_duration %g shorter than comm_timestep %g", ErrInvalidConfig, c.IntervalDuration, c.CommTimestep)
	case !wholeTicks(c.IntervalDuration, c.CommTimestep):
		return fmt.Errorf("%w: interval_duration %g is not a whole number of comm_timestep %g", ErrInvalidConfig, c.IntervalDuration, c.CommTimestep)
	case c.Tolerance <= 0:
		return fmt.Errorf("%w: tolerance must be positive, got %g", ErrInvalidConfig, c.Tolerance)
	case c.Network == "":
		return fmt.Errorf("%w: network path is required", ErrInvalidConfig)
	case c.Initial == "":
		return fmt.Errorf("%w: initial checkpoint path is required", ErrInvalidConfig)
	case c.Replicates < 1:
		return fmt.Errorf("%w: replicates must be at least 1, got %d", ErrInvalidConfig, c.Replicates)
	case c.Intervals < 1:
		return fmt.Errorf("%w: intervals must be at least 1, got %d", ErrInvalidConfig, c.Intervals)
	case c.InitIntervals < 0:
		return fmt.Errorf("%w: init_intervals must not be negative, got %d", ErrInvalidConfig, c.InitIntervals)
	case c.Cores < 0:
		return fmt.Errorf("%w: cores must not be negative, got %d", ErrInvalidConfig, c.Cores)
	}
	if _, err := c.RecordedCategories(); err != nil {
		return fmt.Errorf("%w: timecourse_categories: %v", ErrInvalidConfig, err)
	}
	return nil
}

// envOverrides holds the CMEODE_* variables; nil fields were not set.
type envOverrides struct {
	CommTimestep      *float64 `env:"COMM_TIMESTEP"`
	MaxODEStep        *float64 `env:"MAX_ODE_STEP"`
	IntervalDuration  *float64 `env:"INTERVAL_DURATION"`
	UseCompiledSolver *bool    `env:"USE_COMPILED_SOLVER"`
	Integrator        *string  `env:"INTEGRATOR"`
	Tolerance         *float64 `env:"TOLERANCE"`
	Network           *string  `env:"NETWORK"`
	Initial           *string  `env:"INITIAL"`
	CME               *string  `env:"CME"`
	DataDir           *string  `env:"DATA_DIR"`
	Seed              *int64   `env:"SEED"`
	Replicates        *int     `env:"REPLICATES"`
	Intervals         *int     `env:"INTERVALS"`
	InitIntervals     *int     `env:"INIT_INTERVALS"`
	Cores             *int     `env:"CORES"`
	ProgressEvery     *int     `env:"PROGRESS_EVERY"`
}

// ApplyEnv overlays CMEODE_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	set(&cfg.CommTimestep, o.CommTimestep)
	set(&cfg.MaxODEStep, o.MaxODEStep)
	set(&cfg.IntervalDuration, o.IntervalDuration)
	set(&cfg.UseCompiledSolver, o.UseCompiledSolver)
	set(&cfg.Integrator, o.Integrator)
	set(&cfg.Tolerance, o.Tolerance)
	set(&cfg.Network, o.Network)
	set(&cfg.Initial, o.Initial)
	set(&cfg.CME, o.CME)
	set(&cfg.DataDir, o.DataDir)
	set(&cfg.Seed, o.Seed)
	set(&cfg.Replicates, o.Replicates)
	set(&cfg.Intervals, o.Intervals)
	set(&cfg.InitIntervals, o.InitIntervals)
	set(&cfg.Cores, o.Cores)
	set(&cfg.ProgressEvery, o.ProgressEvery)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
