package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xarmian/voi-wallet-sub002/pkg/persistence"
)

// MemoryPersistence is an in-memory implementation of IDeviceStatePersistence.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Deep copies data to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// Device identity
	deviceState *persistence.DeviceState

	// Paired signers: deviceID -> PairedSignerRecord
	pairedSigners map[string]*persistence.PairedSignerRecord

	// Replay-prevention ledger: requestID -> ProcessedRequest
	processed map[string]*persistence.ProcessedRequest

	// Closed flag
	closed bool
}

var _ persistence.IDeviceStatePersistence = (*MemoryPersistence)(nil)

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a loud warning since this should only be used for testing.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory persistence - ALL DATA WILL BE LOST ON RESTART")
	fmt.Println("⚠️  This should ONLY be used for testing. Set AIRGAP_PERSISTENCE_TYPE=badger for production")

	return &MemoryPersistence{
		pairedSigners: make(map[string]*persistence.PairedSignerRecord),
		processed:     make(map[string]*persistence.ProcessedRequest),
	}
}

// SaveDeviceState persists the device role and signer identity.
func (m *MemoryPersistence) SaveDeviceState(state *persistence.DeviceState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil DeviceState")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	copied := *state
	m.deviceState = &copied

	return nil
}

// LoadDeviceState retrieves the device role and signer identity.
func (m *MemoryPersistence) LoadDeviceState() (*persistence.DeviceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	if m.deviceState == nil {
		return nil, nil // Not found is not an error
	}

	copied := *m.deviceState
	return &copied, nil
}

// SavePairedSigner persists a paired signer record keyed by device id.
func (m *MemoryPersistence) SavePairedSigner(record *persistence.PairedSignerRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil PairedSignerRecord")
	}
	if record.DeviceID == "" {
		return fmt.Errorf("cannot save PairedSignerRecord with empty device id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	// Deep copy to prevent external mutation
	m.pairedSigners[record.DeviceID] = deepCopyPairedSignerRecord(record)

	return nil
}

// LoadPairedSigner retrieves a paired signer record by device id.
func (m *MemoryPersistence) LoadPairedSigner(deviceID string) (*persistence.PairedSignerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	record, exists := m.pairedSigners[deviceID]
	if !exists {
		return nil, nil // Not found is not an error
	}

	return deepCopyPairedSignerRecord(record), nil
}

// ListPairedSigners returns all paired signer records sorted by device id.
func (m *MemoryPersistence) ListPairedSigners() ([]*persistence.PairedSignerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	records := make([]*persistence.PairedSignerRecord, 0, len(m.pairedSigners))
	for _, record := range m.pairedSigners {
		records = append(records, deepCopyPairedSignerRecord(record))
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].DeviceID < records[j].DeviceID
	})

	return records, nil
}

// DeletePairedSigner removes a paired signer record. Idempotent.
func (m *MemoryPersistence) DeletePairedSigner(deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	delete(m.pairedSigners, deviceID)

	return nil
}

// MarkRequestProcessed records a request id in the replay-prevention ledger.
func (m *MemoryPersistence) MarkRequestProcessed(requestID string, processedAt time.Time) error {
	if requestID == "" {
		return fmt.Errorf("cannot mark empty request id as processed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	m.processed[requestID] = &persistence.ProcessedRequest{
		RequestID:   requestID,
		ProcessedAt: processedAt.UnixMilli(),
	}

	return nil
}

// IsRequestProcessed reports whether a request id has been processed.
func (m *MemoryPersistence) IsRequestProcessed(requestID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, fmt.Errorf("persistence layer is closed")
	}

	_, exists := m.processed[requestID]
	return exists, nil
}

// PruneProcessedRequests removes ledger entries older than the cutoff.
func (m *MemoryPersistence) PruneProcessedRequests(olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fmt.Errorf("persistence layer is closed")
	}

	cutoff := olderThan.UnixMilli()

	pruned := 0
	for id, record := range m.processed {
		if record.ProcessedAt < cutoff {
			delete(m.processed, id)
			pruned++
		}
	}

	return pruned, nil
}

// Close shuts down the persistence layer. Idempotent.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil // Already closed, idempotent
	}

	m.closed = true
	m.deviceState = nil
	m.pairedSigners = nil
	m.processed = nil

	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return nil
}

// deepCopyPairedSignerRecord creates a deep copy of a PairedSignerRecord.
func deepCopyPairedSignerRecord(record *persistence.PairedSignerRecord) *persistence.PairedSignerRecord {
	copied := *record
	copied.Addresses = append([]string{}, record.Addresses...)
	return &copied
}
