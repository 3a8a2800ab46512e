// Package collector samples host metrics and fans them out to stream
// subscribers.
package collector

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/iudanet/pidash/pkg/api"
)

// Source produces one system sample
type Source interface {
	Collect(ctx context.Context) (api.SystemStats, error)
}

// HostSource reads the local host through gopsutil
type HostSource struct {
	logger   *slog.Logger
	diskPath string
	lastFreq uint64
}

// NewHostSource creates a source reading the filesystem at diskPath ("/" if empty)
func NewHostSource(diskPath string, logger *slog.Logger) *HostSource {
	if diskPath == "" {
		diskPath = "/"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HostSource{diskPath: diskPath, logger: logger}
}

// Collect implements Source. Partial failures are logged and leave zero values.
func (h *HostSource) Collect(ctx context.Context) (api.SystemStats, error) {
	stats := api.SystemStats{Timestamp: time.Now().UTC()}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		h.logger.DebugContext(ctx, "cpu percent unavailable", "error", err)
	} else if len(percents) > 0 {
		stats.CPU.UsagePercent = round1(percents[0])
	}

	stats.CPU.FrequencyMHz = h.frequency(ctx)

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		h.logger.DebugContext(ctx, "memory stats unavailable", "error", err)
	} else {
		stats.Memory = api.MemoryStats{
			UsagePercent: round1(vm.UsedPercent),
			TotalBytes:   vm.Total,
			FreeBytes:    vm.Free,
			UsedBytes:    vm.Used,
		}
	}

	if usage, err := disk.UsageWithContext(ctx, h.diskPath); err != nil {
		h.logger.DebugContext(ctx, "disk stats unavailable", "error", err, "path", h.diskPath)
	} else {
		stats.Disk = api.DiskStats{
			UsagePercent:   round1(usage.UsedPercent),
			UsedBytes:      usage.Used,
			AvailableBytes: usage.Free,
			TotalBytes:     usage.Total,
		}
	}

	temps, err := sensors.TemperaturesWithContext(ctx)
	if err != nil && len(temps) == 0 {
		h.logger.DebugContext(ctx, "temperature sensors unavailable", "error", err)
	}
	readings := make([]Reading, 0, len(temps))
	for _, t := range temps {
		readings = append(readings, Reading{Label: t.SensorKey, Celsius: t.Temperature})
	}
	stats.Temperatures = GroupTemperatures(readings)
	stats.CPU.Temperature = cpuTemperature(stats.Temperatures)

	return stats, nil
}

func (h *HostSource) frequency(ctx context.Context) uint64 {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil || len(infos) == 0 {
		return h.lastFreq
	}

	var sum float64
	for _, info := range infos {
		sum += info.Mhz
	}
	h.lastFreq = uint64(sum / float64(len(infos)))
	return h.lastFreq
}

// Reading is one raw temperature sensor value
type Reading struct {
	Label   string
	Celsius float64
}

// группы в порядке вывода
var tempGroups = []struct {
	label    string
	keywords []string
}{
	{label: "CPU", keywords: []string{"cpu", "core", "coretemp", "k10temp", "soc", "package"}},
	{label: "GPU", keywords: []string{"gpu", "amdgpu", "nouveau", "v3d"}},
	{label: "NVMe", keywords: []string{"nvme", "composite"}},
	{label: "Board", keywords: []string{"acpi", "pch", "board", "thermal"}},
}

// GroupTemperatures collapses raw sensor readings into labelled groups,
// keeping the hottest reading of each group. Implausible readings are dropped.
func GroupTemperatures(raw []Reading) []api.TempGroup {
	hottest := make(map[string]float64)

	for _, r := range raw {
		if r.Celsius <= -40 || r.Celsius >= 150 {
			continue
		}

		group := "Other"
		label := strings.ToLower(r.Label)
	match:
		for _, g := range tempGroups {
			for _, kw := range g.keywords {
				if strings.Contains(label, kw) {
					group = g.label
					break match
				}
			}
		}

		if cur, ok := hottest[group]; !ok || r.Celsius > cur {
			hottest[group] = r.Celsius
		}
	}

	result := make([]api.TempGroup, 0, len(hottest))
	for label, celsius := range hottest {
		result = append(result, api.TempGroup{Label: label, Temperature: round1(celsius)})
	}
	sort.Slice(result, func(i, j int) bool {
		return groupOrder(result[i].Label) < groupOrder(result[j].Label)
	})
	return result
}

func groupOrder(label string) int {
	for i, g := range tempGroups {
		if g.label == label {
			return i
		}
	}
	return len(tempGroups)
}

func cpuTemperature(groups []api.TempGroup) *float32 {
	for _, g := range groups {
		if g.Label == "CPU" {
			t := g.Temperature
			return &t
		}
	}
	return nil
}

func round1(v float64) float32 {
	return float32(math.Round(v*10) / 10)
}
