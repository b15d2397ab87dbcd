//go:build linux

package sysstat

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// HostUptime returns the time since boot.
func HostUptime() (time.Duration, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	return time.Duration(info.Uptime) * time.Second, nil
}

// sysMemory is the fallback when /proc/meminfo is unreadable. Without
// MemAvailable, free + buffers approximates reclaimable memory.
func sysMemory() (MemInfo, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return MemInfo{}, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	return MemInfo{
		Total:     uint64(info.Totalram) * unit,
		Available: (uint64(info.Freeram) + uint64(info.Bufferram)) * unit,
	}, nil
}

func diskUsage(mount string) (DiskUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(mount, &st); err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %w", mount, err)
	}
	bsize := uint64(st.Bsize)
	total := st.Blocks * bsize
	// Used as df reports it: everything not free, including root-reserved.
	used := (st.Blocks - st.Bfree) * bsize
	return DiskUsage{Mount: mount, Total: total, Used: used}, nil
}
