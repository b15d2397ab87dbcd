package sysstat

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Format renders a snapshot as the body of the status message.
func Format(s Snapshot) string {
	var b strings.Builder
	b.WriteString("**Server status**")
	if s.Hostname != "" {
		fmt.Fprintf(&b, " for `%s`", s.Hostname)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Uptime: %s\n", FormatUptime(s.Uptime))
	fmt.Fprintf(&b, "CPU: %.1f%%", s.CPUAverage)
	if len(s.CPUCores) > 0 {
		cores := make([]string, len(s.CPUCores))
		for i, p := range s.CPUCores {
			cores[i] = fmt.Sprintf("%.0f%%", p)
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(cores, " "))
	}
	b.WriteString("\n")

	if s.Memory.Total > 0 {
		fmt.Fprintf(&b, "Memory: %s / %s (%.1f%%)\n",
			humanize.IBytes(s.Memory.Used()), humanize.IBytes(s.Memory.Total),
			percent(s.Memory.Used(), s.Memory.Total))
	}
	for _, d := range s.Disks {
		fmt.Fprintf(&b, "Disk %s: %s / %s (%.1f%%)\n",
			d.Mount, humanize.IBytes(d.Used), humanize.IBytes(d.Total), percent(d.Used, d.Total))
	}
	if !s.TakenAt.IsZero() {
		fmt.Fprintf(&b, "Updated <t:%d:R>", s.TakenAt.Unix())
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatUptime renders d as "3 days, 4 hours, 5 minutes", omitting zero
// leading units. Anything under a minute is "less than a minute".
func FormatUptime(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if days > 0 || hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	parts = append(parts, plural(minutes, "minute"))
	return strings.Join(parts, ", ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
