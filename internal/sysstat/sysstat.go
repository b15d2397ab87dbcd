package sysstat

import (
	"context"
	"fmt"
	"os"
	"time"
)

// DefaultWindow is the CPU sampling window.
const DefaultWindow = time.Second

// DiskUsage describes one mounted filesystem.
type DiskUsage struct {
	Mount string
	Total uint64 // bytes
	Used  uint64 // bytes
}

// Snapshot is one point-in-time view of the host.
type Snapshot struct {
	Hostname   string
	Memory     MemInfo
	CPUAverage float64
	CPUCores   []float64
	Disks      []DiskUsage
	Uptime     time.Duration
	TakenAt    time.Time
}

// Sampler collects snapshots. The zero value reads the real /proc files
// and reports the root filesystem.
type Sampler struct {
	ProcStatPath string        // default /proc/stat
	MemInfoPath  string        // default /proc/meminfo
	Mounts       []string      // default ["/"]
	Window       time.Duration // CPU sampling window, default DefaultWindow
}

// Snapshot samples CPU over the window and reads memory, disks and
// uptime. A failing disk is skipped rather than failing the snapshot.
func (s *Sampler) Snapshot(ctx context.Context) (Snapshot, error) {
	before, err := readCPUStats(s.procStatPath())
	if err != nil {
		return Snapshot{}, err
	}

	window := s.Window
	if window <= 0 {
		window = DefaultWindow
	}
	t := time.NewTimer(window)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	after, err := readCPUStats(s.procStatPath())
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		CPUAverage: CPUPercent(before.Total, after.Total),
		TakenAt:    time.Now(),
	}
	for i := range after.Cores {
		if i < len(before.Cores) {
			snap.CPUCores = append(snap.CPUCores, CPUPercent(before.Cores[i], after.Cores[i]))
		}
	}

	snap.Hostname, _ = os.Hostname()

	if snap.Memory, err = readMemInfo(s.memInfoPath()); err != nil {
		if snap.Memory, err = sysMemory(); err != nil {
			return Snapshot{}, fmt.Errorf("memory: %w", err)
		}
	}

	if snap.Uptime, err = HostUptime(); err != nil {
		return Snapshot{}, fmt.Errorf("uptime: %w", err)
	}

	for _, mount := range s.mounts() {
		du, err := diskUsage(mount)
		if err != nil {
			continue
		}
		snap.Disks = append(snap.Disks, du)
	}
	return snap, nil
}

func (s *Sampler) procStatPath() string {
	if s.ProcStatPath != "" {
		return s.ProcStatPath
	}
	return "/proc/stat"
}

func (s *Sampler) memInfoPath() string {
	if s.MemInfoPath != "" {
		return s.MemInfoPath
	}
	return "/proc/meminfo"
}

func (s *Sampler) mounts() []string {
	if len(s.Mounts) > 0 {
		return s.Mounts
	}
	return []string{"/"}
}
