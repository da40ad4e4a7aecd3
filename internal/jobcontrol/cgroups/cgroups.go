// Package cgroups places jobs in cgroup v2 groups with optional resource
// limits.
package cgroups

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	cpuPeriodMicros = 100000
	namePrefix      = "jobshell-"

	// drainTimeout bounds how long Destroy waits for a killed group to empty.
	drainTimeout = 2 * time.Second
)

// Limits are the resource limits applied to a job's cgroup. A zero field
// leaves the corresponding controller untouched.
type Limits struct {
	MemoryMaxBytes int64
	CPUMaxPercent  int64
	PidsMax        int64
}

// IsZero reports whether no limit is set.
func (l *Limits) IsZero() bool {
	return l == nil || (l.MemoryMaxBytes == 0 && l.CPUMaxPercent == 0 && l.PidsMax == 0)
}

// Cgroup is a cgroup v2 directory created for a single job. The directory is
// held open so a child can be started directly inside it via CgroupFD.
type Cgroup struct {
	name string
	path string
	dir  *os.File
}

// Create makes the cgroup root/jobshell-<name>, applies limits and opens it.
func Create(root, name string, limits *Limits) (*Cgroup, error) {
	cg := &Cgroup{
		name: name,
		path: filepath.Join(root, namePrefix+name),
	}

	if err := os.Mkdir(cg.path, 0755); err != nil {
		return nil, fmt.Errorf("make cgroup dir: %w", err)
	}

	if !limits.IsZero() {
		if err := cg.applyLimits(limits); err != nil {
			os.Remove(cg.path)
			return nil, fmt.Errorf("apply cgroup limits: %w", err)
		}
	}

	dir, err := os.Open(cg.path)
	if err != nil {
		os.Remove(cg.path)
		return nil, fmt.Errorf("open cgroup dir: %w", err)
	}

	cg.dir = dir

	return cg, nil
}

func (c *Cgroup) applyLimits(limits *Limits) error {
	if limits.CPUMaxPercent > 0 {
		quota := (limits.CPUMaxPercent * cpuPeriodMicros) / 100

		if err := c.write("cpu.max", fmt.Sprintf("%d %d", quota, cpuPeriodMicros)); err != nil {
			return err
		}
	}

	if limits.MemoryMaxBytes > 0 {
		if err := c.write("memory.max", strconv.FormatInt(limits.MemoryMaxBytes, 10)); err != nil {
			return err
		}
	}

	if limits.PidsMax > 0 {
		if err := c.write("pids.max", strconv.FormatInt(limits.PidsMax, 10)); err != nil {
			return err
		}
	}

	return nil
}

func (c *Cgroup) write(file, value string) error {
	if err := os.WriteFile(filepath.Join(c.path, file), []byte(value), 0644); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}

	return nil
}

// FD returns the descriptor of the open cgroup directory, for use as
// syscall.SysProcAttr.CgroupFD.
func (c *Cgroup) FD() int {
	if c.dir == nil {
		return -1
	}

	return int(c.dir.Fd())
}

func (c *Cgroup) Name() string {
	return c.name
}

func (c *Cgroup) Path() string {
	return c.path
}

// Populated reports whether any process is still in the cgroup.
func (c *Cgroup) Populated() (bool, error) {
	events, err := os.ReadFile(filepath.Join(c.path, "cgroup.events"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("read cgroup.events: %w", err)
	}

	fields := strings.Fields(string(events))
	for i, field := range fields {
		if field == "populated" && i+1 < len(fields) {
			return fields[i+1] == "1", nil
		}
	}

	return false, nil
}

// Kill sends SIGKILL to every process in the cgroup.
func (c *Cgroup) Kill() error {
	return c.write("cgroup.kill", "1")
}

// Destroy removes the cgroup. Processes the job left behind, e.g. daemonised
// grandchildren, are killed first so the directory can be removed.
func (c *Cgroup) Destroy() error {
	if c.dir != nil {
		c.dir.Close()
		c.dir = nil
	}

	populated, err := c.Populated()
	if err != nil {
		return err
	}

	if populated {
		if err := c.Kill(); err != nil {
			return err
		}

		deadline := time.Now().Add(drainTimeout)

		for populated {
			if time.Now().After(deadline) {
				return fmt.Errorf("timed out waiting for empty cgroup %s", c.path)
			}

			time.Sleep(10 * time.Millisecond)

			if populated, err = c.Populated(); err != nil {
				return err
			}
		}
	}

	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cgroup: %w", err)
	}

	return nil
}

// Validate checks that root is a cgroup v2 directory.
func Validate(root string) error {
	controllers := filepath.Join(root, "cgroup.controllers")
	if _, err := os.Stat(controllers); err != nil {
		return fmt.Errorf("cgroup root not valid at %s: %w", root, err)
	}

	return nil
}
