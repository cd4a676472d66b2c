package config

import (
	"sort"
	"time"
)

// HistoryVersion is the current history file format.
const HistoryVersion = 1

// History is the record of IMDs configured from this workstation.
type History struct {
	Version int             `yaml:"version"`
	Devices []*DeviceRecord `yaml:"devices,omitempty"` // Oldest first
}

// DeviceRecord describes one configuration run against one IMD.
type DeviceRecord struct {
	Hostname     string            `yaml:"hostname,omitempty"`
	IP           string            `yaml:"ip"`
	Firmware     string            `yaml:"firmware,omitempty"`
	ConfiguredAt time.Time         `yaml:"configured_at"`
	Complete     bool              `yaml:"complete"`         // Every call succeeded
	Values       map[string]string `yaml:"values,omitempty"` // Non-secret values collected for the run
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{Version: HistoryVersion}
}

// Record appends rec, stamping it with the current time when it has none.
func (h *History) Record(rec DeviceRecord) *DeviceRecord {
	if rec.ConfiguredAt.IsZero() {
		rec.ConfiguredAt = time.Now()
	}
	r := &rec
	h.Devices = append(h.Devices, r)
	return r
}

// Last returns the most recent record, or nil.
func (h *History) Last() *DeviceRecord {
	if len(h.Devices) == 0 {
		return nil
	}
	return h.Devices[len(h.Devices)-1]
}

// FindByHostname returns the most recent record for hostname, or nil.
func (h *History) FindByHostname(hostname string) *DeviceRecord {
	for i := len(h.Devices) - 1; i >= 0; i-- {
		if h.Devices[i].Hostname == hostname {
			return h.Devices[i]
		}
	}
	return nil
}

// Recent returns up to n records, newest first. n <= 0 returns all.
func (h *History) Recent(n int) []*DeviceRecord {
	out := make([]*DeviceRecord, len(h.Devices))
	copy(out, h.Devices)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ConfiguredAt.After(out[j].ConfiguredAt)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Prune keeps only the newest max records. max <= 0 keeps everything.
func (h *History) Prune(max int) {
	if max <= 0 || len(h.Devices) <= max {
		return
	}
	h.Devices = append([]*DeviceRecord(nil), h.Devices[len(h.Devices)-max:]...)
}
