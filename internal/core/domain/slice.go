package domain

// SliceStatus tracks how far a header slice has moved through the
// download pipeline.
type SliceStatus string

const (
	// SliceStatusEmpty means the slice has no headers and no request in flight.
	SliceStatusEmpty SliceStatus = "empty"
	// SliceStatusWaiting means a header request was handed to the gateway
	// and a response is awaited.
	SliceStatusWaiting SliceStatus = "waiting"
	// SliceStatusDownloaded means headers arrived but are not yet verified.
	SliceStatusDownloaded SliceStatus = "downloaded"
	// SliceStatusVerified means the headers form a consistent chain.
	SliceStatusVerified SliceStatus = "verified"
	// SliceStatusSaved means the headers were persisted to the archive.
	SliceStatusSaved SliceStatus = "saved"
)

// SliceStatuses lists every status in pipeline order.
var SliceStatuses = []SliceStatus{
	SliceStatusEmpty,
	SliceStatusWaiting,
	SliceStatusDownloaded,
	SliceStatusVerified,
	SliceStatusSaved,
}
