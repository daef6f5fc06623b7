package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HeaderRequestsSent tracks header requests accepted by the send queue
	HeaderRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "downloader_header_requests_sent_total",
			Help: "Total number of header requests handed to the sentry gateway",
		},
	)

	// SendQueueFull tracks scans truncated by a full send queue
	SendQueueFull = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "downloader_send_queue_full_total",
			Help: "Total number of times the outbound send queue was full",
		},
	)

	// SendErrors tracks dispatch failures per gRPC code
	SendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downloader_send_errors_total",
			Help: "Total number of outbound dispatch errors",
		},
		[]string{"code"},
	)

	// SendQueueOccupancy tracks how many messages sit in the send queue
	SendQueueOccupancy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "downloader_send_queue_occupancy",
			Help: "Current number of messages in the outbound send queue",
		},
	)

	// SlicesByStatus tracks the slice window composition
	SlicesByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "downloader_slices_by_status",
			Help: "Number of header slices per pipeline status",
		},
		[]string{"status"},
	)

	// HeadersReceived tracks headers delivered by peers
	HeadersReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "downloader_headers_received_total",
			Help: "Total number of block headers received from peers",
		},
	)

	// PacketsDiscarded tracks inbound packets that matched no waiting slice
	PacketsDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "downloader_packets_discarded_total",
			Help: "Total number of inbound header packets that matched no slice",
		},
	)

	// SlicesRetried tracks timed-out slices returned to the request queue
	SlicesRetried = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "downloader_slices_retried_total",
			Help: "Total number of slices re-queued after a request timeout",
		},
	)

	// HeadersSaved tracks headers persisted to the archive
	HeadersSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "downloader_headers_saved_total",
			Help: "Total number of block headers persisted to the archive",
		},
	)

	// ArchiveTip tracks the highest saved block number
	ArchiveTip = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "downloader_archive_tip",
			Help: "Highest block number persisted to the archive",
		},
	)
)
