// Package sysstat samples host CPU, memory, disk and uptime figures for
// the status message.
package sysstat

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrUnsupported is returned on platforms without /proc and sysinfo.
var ErrUnsupported = errors.New("sysstat: not supported on this platform")

// CPUReading captures cumulative CPU time from one /proc/stat line for
// delta computation:
//
//	cpu  user nice system idle iowait irq softirq steal guest guest_nice
//
// busy = user + nice + system + irq + softirq + steal
// idle = idle + iowait
//
// guest and guest_nice are already included in user/nice (kernel
// accounting) so they are not added separately.
type CPUReading struct {
	Busy uint64
	Idle uint64
}

// CPUStats holds the aggregate line and one reading per core.
type CPUStats struct {
	Total CPUReading
	Cores []CPUReading
}

// readCPUStats parses the cpu lines of a /proc/stat-format file.
func readCPUStats(path string) (CPUStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return CPUStats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var stats CPUStats
	seenTotal := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || !strings.HasPrefix(fields[0], "cpu") {
			// cpu lines come first; stop at the first non-cpu line.
			if seenTotal {
				break
			}
			continue
		}
		r, err := parseCPULine(fields)
		if err != nil {
			return CPUStats{}, err
		}
		if fields[0] == "cpu" {
			stats.Total = r
			seenTotal = true
		} else {
			stats.Cores = append(stats.Cores, r)
		}
	}
	if err := scanner.Err(); err != nil {
		return CPUStats{}, fmt.Errorf("read %s: %w", path, err)
	}
	if !seenTotal {
		return CPUStats{}, fmt.Errorf("%s: no aggregate cpu line", path)
	}
	return stats, nil
}

func parseCPULine(fields []string) (CPUReading, error) {
	// The label plus at least 8 numeric fields must be present.
	if len(fields) < 9 {
		return CPUReading{}, fmt.Errorf("short cpu line %q", strings.Join(fields, " "))
	}
	values := make([]uint64, 8)
	for i := range values {
		v, err := strconv.ParseUint(fields[i+1], 10, 64)
		if err != nil {
			return CPUReading{}, fmt.Errorf("cpu line %q: %w", fields[0], err)
		}
		values[i] = v
	}
	//   0=user, 1=nice, 2=system, 3=idle, 4=iowait,
	//   5=irq, 6=softirq, 7=steal
	busy := values[0] + values[1] + values[2] + values[5] + values[6] + values[7]
	idle := values[3] + values[4]
	return CPUReading{Busy: busy, Idle: idle}, nil
}

// CPUPercent computes utilization from two sequential readings. Returns 0
// when no time has passed or the counters went backwards.
func CPUPercent(previous, current CPUReading) float64 {
	if current.Busy < previous.Busy || current.Idle < previous.Idle {
		return 0
	}
	busyDelta := current.Busy - previous.Busy
	idleDelta := current.Idle - previous.Idle
	total := busyDelta + idleDelta
	if total == 0 {
		return 0
	}
	return float64(busyDelta) / float64(total) * 100
}

// MemInfo is the subset of /proc/meminfo the status message shows.
type MemInfo struct {
	Total     uint64 // bytes
	Available uint64 // bytes
}

// Used returns Total - Available, the figure `free` reports as used.
func (m MemInfo) Used() uint64 {
	if m.Available > m.Total {
		return 0
	}
	return m.Total - m.Available
}

// readMemInfo parses MemTotal and MemAvailable (in kB) from a
// /proc/meminfo-format file.
func readMemInfo(path string) (MemInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return MemInfo{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var mi MemInfo
	var haveTotal, haveAvail bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && !(haveTotal && haveAvail) {
		key, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		var dst *uint64
		switch key {
		case "MemTotal":
			dst, haveTotal = &mi.Total, true
		case "MemAvailable":
			dst, haveAvail = &mi.Available, true
		default:
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return MemInfo{}, fmt.Errorf("%s: empty %s", path, key)
		}
		kb, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return MemInfo{}, fmt.Errorf("%s: %s: %w", path, key, err)
		}
		*dst = kb * 1024
	}
	if err := scanner.Err(); err != nil {
		return MemInfo{}, fmt.Errorf("read %s: %w", path, err)
	}
	if !haveTotal || !haveAvail {
		return MemInfo{}, fmt.Errorf("%s: missing MemTotal or MemAvailable", path)
	}
	return mi, nil
}
