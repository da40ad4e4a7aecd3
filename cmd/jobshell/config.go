package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nixpig/jobshell/internal/jobcontrol/cgroups"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const defaultPrompt = "COMMAND->"

type config struct {
	prompt string
	debug  bool

	cgroupRoot    string
	memoryMax     int64
	cpuMaxPercent int64
	pidsMax       int64
}

// fileConfig is the layout of the optional YAML config file. Pointers
// distinguish keys that are absent from keys set to their zero value.
type fileConfig struct {
	Prompt *string `yaml:"prompt"`
	Debug  *bool   `yaml:"debug"`

	Cgroup struct {
		Root          *string `yaml:"root"`
		MemoryMax     *int64  `yaml:"memory_max"`
		CPUMaxPercent *int64  `yaml:"cpu_max_percent"`
		PidsMax       *int64  `yaml:"pids_max"`
	} `yaml:"cgroup"`
}

func defaultConfig() *config {
	return &config{prompt: defaultPrompt}
}

func bindFlags(flags *pflag.FlagSet, cfg *config) {
	flags.StringVar(&cfg.prompt, "prompt", cfg.prompt, "Prompt shown before each command")
	flags.BoolVar(&cfg.debug, "debug", cfg.debug, "Enable debug logs")

	flags.StringVar(
		&cfg.cgroupRoot,
		"cgroup-root",
		cfg.cgroupRoot,
		"cgroup v2 directory to create a cgroup per job under (disabled if empty)",
	)

	flags.Int64Var(
		&cfg.memoryMax,
		"memory-max",
		cfg.memoryMax,
		"Memory limit per job in bytes (requires --cgroup-root)",
	)

	flags.Int64Var(
		&cfg.cpuMaxPercent,
		"cpu-max-percent",
		cfg.cpuMaxPercent,
		"CPU limit per job as a percentage of one CPU (requires --cgroup-root)",
	)

	flags.Int64Var(
		&cfg.pidsMax,
		"pids-max",
		cfg.pidsMax,
		"Process limit per job (requires --cgroup-root)",
	)
}

// load merges the config file at path into c. Flags explicitly set on the
// command line take precedence over the file. An empty path is a no-op.
func (c *config) load(path string, flags *pflag.FlagSet) error {
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	var fc fileConfig

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)

	if err := decoder.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: decode: %w", path, err)
	}

	merge(flags, "prompt", &c.prompt, fc.Prompt)
	merge(flags, "debug", &c.debug, fc.Debug)
	merge(flags, "cgroup-root", &c.cgroupRoot, fc.Cgroup.Root)
	merge(flags, "memory-max", &c.memoryMax, fc.Cgroup.MemoryMax)
	merge(flags, "cpu-max-percent", &c.cpuMaxPercent, fc.Cgroup.CPUMaxPercent)
	merge(flags, "pids-max", &c.pidsMax, fc.Cgroup.PidsMax)

	return nil
}

func merge[T any](flags *pflag.FlagSet, name string, dst *T, src *T) {
	if src == nil || flags.Changed(name) {
		return
	}

	*dst = *src
}

func (c *config) validate() error {
	if c.memoryMax < 0 {
		return errors.New("memory-max cannot be negative")
	}

	if c.cpuMaxPercent < 0 {
		return errors.New("cpu-max-percent cannot be negative")
	}

	if c.pidsMax < 0 {
		return errors.New("pids-max cannot be negative")
	}

	if c.cgroupRoot == "" && !c.limits().IsZero() {
		return errors.New("resource limits require cgroup-root")
	}

	if c.cgroupRoot != "" {
		if err := cgroups.Validate(c.cgroupRoot); err != nil {
			return fmt.Errorf("invalid cgroup-root: %w", err)
		}
	}

	return nil
}

func (c *config) limits() *cgroups.Limits {
	return &cgroups.Limits{
		MemoryMaxBytes: c.memoryMax,
		CPUMaxPercent:  c.cpuMaxPercent,
		PidsMax:        c.pidsMax,
	}
}

func (c *config) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if c.debug {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
