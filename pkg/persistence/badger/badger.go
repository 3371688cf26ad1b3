package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/xarmian/voi-wallet-sub002/pkg/persistence"
)

// Key prefixes for namespacing
const (
	keyDeviceState        = "devicestate:main"
	keyPrefixPairedSigner = "pairedsigner:"
	keyPrefixProcessed    = "processed:"
	keySchemaVersion      = "metadata:schema_version"
	currentSchemaVersion  = "v1"
)

// BadgerPersistence is a production-ready persistence implementation using Badger.
// Provides durable, disk-based storage with ACID guarantees.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ persistence.IDeviceStatePersistence = (*BadgerPersistence)(nil)

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled for
// durability. A background goroutine is started for garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	// Convert to absolute path
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	// Configure Badger for production use
	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newStoreLogger(logger)
	opts.SyncWrites = true // Ensure durability (fsync on every write)
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1 // We don't need versioning within Badger

	// Open database
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	// Initialize schema version
	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Start background GC
	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			// First time setup - set schema version
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		// Validate existing schema version
		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Run value log GC with 0.5 discard ratio
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// SaveDeviceState persists the device role and signer identity
func (b *BadgerPersistence) SaveDeviceState(state *persistence.DeviceState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil DeviceState")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	// Serialize to JSON
	data, err := persistence.MarshalDeviceState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal DeviceState: %w", err)
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keyDeviceState), data)
	})
}

// LoadDeviceState retrieves the device role and signer identity
func (b *BadgerPersistence) LoadDeviceState() (*persistence.DeviceState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	var data []byte

	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyDeviceState))
		if err == badgerdb.ErrKeyNotFound {
			return nil // Not found is not an error
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...) // Copy value
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load DeviceState: %w", err)
	}

	if data == nil {
		return nil, nil // Not found
	}

	// Deserialize from JSON
	state, err := persistence.UnmarshalDeviceState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal DeviceState: %w", err)
	}

	return state, nil
}

// SavePairedSigner persists a paired signer record
func (b *BadgerPersistence) SavePairedSigner(record *persistence.PairedSignerRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil PairedSignerRecord")
	}
	if record.DeviceID == "" {
		return fmt.Errorf("cannot save PairedSignerRecord with empty device id")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	// Serialize to JSON
	data, err := persistence.MarshalPairedSignerRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal PairedSignerRecord: %w", err)
	}

	key := keyPrefixPairedSigner + record.DeviceID
	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// LoadPairedSigner retrieves a paired signer record by device id
func (b *BadgerPersistence) LoadPairedSigner(deviceID string) (*persistence.PairedSignerRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	key := keyPrefixPairedSigner + deviceID

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badgerdb.ErrKeyNotFound {
			return nil // Not found is not an error
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...) // Copy value
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load PairedSignerRecord: %w", err)
	}

	if data == nil {
		return nil, nil // Not found
	}

	// Deserialize from JSON
	record, err := persistence.UnmarshalPairedSignerRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal PairedSignerRecord: %w", err)
	}

	return record, nil
}

// ListPairedSigners returns all paired signer records sorted by device id
func (b *BadgerPersistence) ListPairedSigners() ([]*persistence.PairedSignerRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	var records []*persistence.PairedSignerRecord

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixPairedSigner)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var data []byte
			err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...) // Copy value
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			record, err := persistence.UnmarshalPairedSignerRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal PairedSignerRecord, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			records = append(records, record)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list PairedSignerRecords: %w", err)
	}

	// Sort by device id (ascending)
	sort.Slice(records, func(i, j int) bool {
		return records[i].DeviceID < records[j].DeviceID
	})

	return records, nil
}

// DeletePairedSigner removes a paired signer record
func (b *BadgerPersistence) DeletePairedSigner(deviceID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	key := keyPrefixPairedSigner + deviceID

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// MarkRequestProcessed records a request id in the replay-prevention ledger
func (b *BadgerPersistence) MarkRequestProcessed(requestID string, processedAt time.Time) error {
	if requestID == "" {
		return fmt.Errorf("cannot mark empty request id as processed")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	record := &persistence.ProcessedRequest{
		RequestID:   requestID,
		ProcessedAt: processedAt.UnixMilli(),
	}

	data, err := persistence.MarshalProcessedRequest(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ProcessedRequest: %w", err)
	}

	key := keyPrefixProcessed + requestID
	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// IsRequestProcessed reports whether a request id has been processed
func (b *BadgerPersistence) IsRequestProcessed(requestID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, fmt.Errorf("persistence layer is closed")
	}

	key := keyPrefixProcessed + requestID

	found := false
	err := b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})

	if err != nil {
		return false, fmt.Errorf("failed to check processed request: %w", err)
	}

	return found, nil
}

// PruneProcessedRequests removes ledger entries older than the cutoff
func (b *BadgerPersistence) PruneProcessedRequests(olderThan time.Time) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("persistence layer is closed")
	}

	cutoff := olderThan.UnixMilli()

	// Collect keys to delete under a read transaction first
	var stale [][]byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixProcessed)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var data []byte
			err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...) // Copy value
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			record, err := persistence.UnmarshalProcessedRequest(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal ProcessedRequest, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			if record.ProcessedAt < cutoff {
				stale = append(stale, item.KeyCopy(nil))
			}
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan processed requests: %w", err)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune processed requests: %w", err)
	}

	return len(stale), nil
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	// Stop GC goroutine
	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	// Close database
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	// Try a simple read operation to verify database is accessible
	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
