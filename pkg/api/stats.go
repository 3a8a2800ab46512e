package api

import "time"

// TempGroup is a pre-grouped temperature reading.
type TempGroup struct {
	Label       string  `json:"label"`
	Temperature float32 `json:"temperature"`
}

// CPUStats describes processor load.
type CPUStats struct {
	Temperature  *float32 `json:"temperature"`
	UsagePercent float32  `json:"usage_percent"`
	FrequencyMHz uint64   `json:"frequency_mhz"`
}

// MemoryStats describes RAM usage.
type MemoryStats struct {
	UsagePercent float32 `json:"usage_percent"`
	TotalBytes   uint64  `json:"total_bytes"`
	FreeBytes    uint64  `json:"free_bytes"`
	UsedBytes    uint64  `json:"used_bytes"`
}

// DiskStats describes root filesystem usage.
type DiskStats struct {
	UsagePercent   float32 `json:"usage_percent"`
	UsedBytes      uint64  `json:"used_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	TotalBytes     uint64  `json:"total_bytes"`
}

// SystemStats is one sample pushed over the realtime stream and
// returned by GET /api/stats.
type SystemStats struct {
	Timestamp    time.Time   `json:"timestamp"`
	Temperatures []TempGroup `json:"temperatures"`
	CPU          CPUStats    `json:"cpu"`
	Memory       MemoryStats `json:"memory"`
	Disk         DiskStats   `json:"disk"`
}

// HistoryPoint is a flattened sample used by the history endpoint.
type HistoryPoint struct {
	Timestamp    time.Time   `json:"timestamp"`
	CPUTemp      *float32    `json:"cpu_temp"`
	Temperatures []TempGroup `json:"temperatures"`
	CPUFreq      uint64      `json:"cpu_freq"`
	CPUPercent   float32     `json:"cpu_percent"`
	MemPercent   float32     `json:"mem_percent"`
	DiskPercent  float32     `json:"disk_percent"`
}

// NewHistoryPoint flattens a sample.
func NewHistoryPoint(s SystemStats) HistoryPoint {
	return HistoryPoint{
		Timestamp:    s.Timestamp,
		CPUPercent:   s.CPU.UsagePercent,
		CPUFreq:      s.CPU.FrequencyMHz,
		CPUTemp:      s.CPU.Temperature,
		MemPercent:   s.Memory.UsagePercent,
		DiskPercent:  s.Disk.UsagePercent,
		Temperatures: s.Temperatures,
	}
}

// HistoryResponse is returned by GET /api/history.
type HistoryResponse struct {
	Range  string         `json:"range"`
	Points []HistoryPoint `json:"points"`
}

// History ranges accepted by GET /api/history.
const (
	RangeRaw  = "raw"
	RangeDay  = "day"
	RangeWeek = "week"
)
