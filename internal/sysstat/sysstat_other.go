//go:build !linux

package sysstat

import "time"

// HostUptime is only implemented on Linux.
func HostUptime() (time.Duration, error) { return 0, ErrUnsupported }

func sysMemory() (MemInfo, error) { return MemInfo{}, ErrUnsupported }

func diskUsage(string) (DiskUsage, error) { return DiskUsage{}, ErrUnsupported }
