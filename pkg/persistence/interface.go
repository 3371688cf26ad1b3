package persistence

import "time"

// IDeviceStatePersistence defines the interface for the durable state shared
// by the air-gapped signing subsystem. Hydrated once at process start,
// mutated only through these operations, flushed on every mutation that must
// survive a restart. All implementations must be thread-safe.
//
// The interface covers:
// - Device identity (role, signer identity)
// - The paired-signer map owned by the wallet device
// - The replay-prevention ledger owned by the signer device
// - Lifecycle management (close, health check)
type IDeviceStatePersistence interface {
	// Device Identity

	// SaveDeviceState persists the device role and signer identity.
	// Overwrites any existing state.
	SaveDeviceState(state *DeviceState) error

	// LoadDeviceState retrieves the device role and signer identity.
	// Returns nil if none exists (first run), error only on storage failure.
	LoadDeviceState() (*DeviceState, error)

	// Paired Signer Map

	// SavePairedSigner persists a paired signer record keyed by device id.
	// Overwrites any existing record for the same device (idempotent).
	SavePairedSigner(record *PairedSignerRecord) error

	// LoadPairedSigner retrieves a paired signer record by device id.
	// Returns nil if the device is not paired, error only on storage failure.
	LoadPairedSigner(deviceID string) (*PairedSignerRecord, error)

	// ListPairedSigners returns all paired signer records sorted by device id.
	// Returns empty slice if none exist, error only on storage failure.
	ListPairedSigners() ([]*PairedSignerRecord, error)

	// DeletePairedSigner removes a paired signer record. Records are only
	// ever deleted by explicit user action, never by the subsystem itself.
	// Idempotent - returns nil if the record doesn't exist.
	DeletePairedSigner(deviceID string) error

	// Replay-Prevention Ledger

	// MarkRequestProcessed records a request id as processed. The record
	// must be durable before the corresponding response is released.
	// Idempotent - marking the same id twice is not an error.
	MarkRequestProcessed(requestID string, processedAt time.Time) error

	// IsRequestProcessed reports whether a request id has been processed.
	// Returns error only on storage failure.
	IsRequestProcessed(requestID string) (bool, error)

	// PruneProcessedRequests removes processed-request records older than
	// the cutoff. Maintenance only: request expiry rejects old requests
	// independently of this ledger. Returns the number of records removed.
	PruneProcessedRequests(olderThan time.Time) (int, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Returns nil if healthy, error describing the problem if not.
	// Should be called during startup to fail fast.
	HealthCheck() error
}
