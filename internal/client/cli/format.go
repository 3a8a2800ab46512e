package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/pidash/pkg/api"
)

// formatBytes форматирует размер в двоичных единицах
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatTemp(t *float32) string {
	if t == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f°C", *t)
}

func formatStats(s api.SystemStats) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Time     %s\n", s.Timestamp.Local().Format(time.DateTime))
	fmt.Fprintf(&b, "CPU      %5.1f%%  %d MHz  %s\n", s.CPU.UsagePercent, s.CPU.FrequencyMHz, formatTemp(s.CPU.Temperature))
	fmt.Fprintf(&b, "Memory   %5.1f%%  %s / %s\n", s.Memory.UsagePercent, formatBytes(s.Memory.UsedBytes), formatBytes(s.Memory.TotalBytes))
	fmt.Fprintf(&b, "Disk     %5.1f%%  %s / %s\n", s.Disk.UsagePercent, formatBytes(s.Disk.UsedBytes), formatBytes(s.Disk.TotalBytes))

	if len(s.Temperatures) > 0 {
		parts := make([]string, 0, len(s.Temperatures))
		for _, g := range s.Temperatures {
			parts = append(parts, fmt.Sprintf("%s %.1f°C", g.Label, g.Temperature))
		}
		fmt.Fprintf(&b, "Temps    %s\n", strings.Join(parts, "  "))
	}

	return b.String()
}

// formatSampleLine - одна строка для watch
func formatSampleLine(s api.SystemStats) string {
	return fmt.Sprintf("%s  cpu %5.1f%%  mem %5.1f%%  disk %5.1f%%  temp %s",
		s.Timestamp.Local().Format(time.TimeOnly),
		s.CPU.UsagePercent,
		s.Memory.UsagePercent,
		s.Disk.UsagePercent,
		formatTemp(s.CPU.Temperature),
	)
}

func formatHistoryPoint(p api.HistoryPoint) string {
	return fmt.Sprintf("%s  cpu %5.1f%%  mem %5.1f%%  disk %5.1f%%  temp %s",
		p.Timestamp.Local().Format(time.DateTime),
		p.CPUPercent,
		p.MemPercent,
		p.DiskPercent,
		formatTemp(p.CPUTemp),
	)
}
