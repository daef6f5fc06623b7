// Package health provides status reporting for the downloader and the
// HTTP surface that exposes it together with the prometheus metrics.
package health

import (
	"github.com/wmitsuda/akula/internal/core/domain"
	"github.com/wmitsuda/akula/internal/downloader/slices"
)

// SystemStatus represents the overall health state of the downloader.
type SystemStatus string

const (
	StatusHealthy SystemStatus = "healthy"
	StatusStalled SystemStatus = "stalled"
)

// Report is the downloader health snapshot served over HTTP.
type Report struct {
	Status        SystemStatus   `json:"status"`
	Slices        map[string]int `json:"slices"`
	SendQueue     int            `json:"send_queue"`
	SendQueueFull bool           `json:"send_queue_full"`
}

// QueueStats exposes the gateway numbers the monitor needs.
type QueueStats interface {
	Occupancy() int
}

// Monitor assembles health reports from the slice window and the
// gateway.
type Monitor struct {
	store    *slices.Store
	queue    QueueStats
	capacity int
}

// NewMonitor creates a monitor over the store and send queue.
func NewMonitor(store *slices.Store, queue QueueStats, queueCapacity int) *Monitor {
	return &Monitor{store: store, queue: queue, capacity: queueCapacity}
}

// CheckHealth builds the current snapshot. The downloader counts as
// stalled when every slice waits on a response and the send queue is
// idle.
func (m *Monitor) CheckHealth() Report {
	counts := make(map[string]int, len(domain.SliceStatuses))
	total := 0
	for _, status := range domain.SliceStatuses {
		n := m.store.CountInStatus(status)
		counts[string(status)] = n
		total += n
	}

	occupancy := m.queue.Occupancy()
	report := Report{
		Status:        StatusHealthy,
		Slices:        counts,
		SendQueue:     occupancy,
		SendQueueFull: occupancy >= m.capacity,
	}
	if total > 0 && counts[string(domain.SliceStatusWaiting)] == total && occupancy == 0 {
		report.Status = StatusStalled
	}
	return report
}
