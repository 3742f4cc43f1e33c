package config

import "sort"

type preset struct {
	description string
	apply       func(*Config)
}

var presets = map[string]preset{
	"syn3a": {
		description: "1 s coupling, 60 s intervals, compiled RK45",
		apply:       func(*Config) {},
	},
	"quick": {
		description: "2 replicates of 2 short intervals for smoke runs",
		apply: func(c *Config) {
			c.IntervalDuration = 10
			c.Replicates = 2
			c.Intervals = 2
		},
	},
	"fine": {
		description: "tight tolerance and small ODE steps",
		apply: func(c *Config) {
			c.MaxODEStep = 0.01
			c.Tolerance = 1e-9
		},
	},
	"fixed-step": {
		description: "classic RK4 at the max ODE step",
		apply: func(c *Config) {
			c.Integrator = "rk4"
			c.MaxODEStep = 0.05
		},
	},
	"interpreted": {
		description: "walk the reaction list instead of the compiled system",
		apply: func(c *Config) {
			c.UseCompiledSolver = false
		},
	},
	"long": {
		description: "two hours of cell time per replicate",
		apply: func(c *Config) {
			c.Intervals = 120
			c.ProgressEvery = 30
		},
	},
}

// GetPreset returns the defaults with the named preset applied, or nil.
func GetPreset(name string) *Config {
	p, ok := presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	p.apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func PresetDescription(name string) string {
	return presets[name].description
}
