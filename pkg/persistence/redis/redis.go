package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xarmian/voi-wallet-sub002/pkg/persistence"
)

// Key prefixes for namespacing in Redis
const (
	keyDeviceState        = "airgap:devicestate:main"
	keyPrefixPairedSigner = "airgap:pairedsigner:"
	keyPrefixProcessed    = "airgap:processed:"
	keySchemaVersion      = "airgap:metadata:schema_version"
	currentSchemaVersion  = "v1"

	// Key sets for listing operations (Redis doesn't support prefix iteration natively)
	keySetPairedSigners = "airgap:pairedsigners:index"
	keySetProcessed     = "airgap:processed:index"
)

// RedisPersistence is a production-ready persistence implementation using Redis.
// Provides durable, distributed storage suitable for cloud-native deployments.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

var _ persistence.IDeviceStatePersistence = (*RedisPersistence)(nil)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant setups).
	// If set, this prefix is prepended to all keys, e.g., "myapp:" would result in
	// keys like "myapp:airgap:pairedsigner:abc". If empty, keys use the default
	// "airgap:" prefix.
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	// Create Redis client options
	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	// Create Redis client
	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	// Initialize schema version
	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.KeyPrefix != "" {
		logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)
	} else {
		logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB)
	}

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	// Check if schema version exists
	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		// First time setup - set schema version
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	// Validate existing schema version
	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// SaveDeviceState persists the device role and signer identity
func (r *RedisPersistence) SaveDeviceState(state *persistence.DeviceState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil DeviceState")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	// Serialize to JSON
	data, err := persistence.MarshalDeviceState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal DeviceState: %w", err)
	}

	key := r.prefixKey(keyDeviceState)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save DeviceState: %w", err)
	}

	return nil
}

// LoadDeviceState retrieves the device role and signer identity
func (r *RedisPersistence) LoadDeviceState() (*persistence.DeviceState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	key := r.prefixKey(keyDeviceState)

	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load DeviceState: %w", err)
	}

	// Deserialize from JSON
	state, err := persistence.UnmarshalDeviceState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal DeviceState: %w", err)
	}

	return state, nil
}

// SavePairedSigner persists a paired signer record
func (r *RedisPersistence) SavePairedSigner(record *persistence.PairedSignerRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil PairedSignerRecord")
	}
	if record.DeviceID == "" {
		return fmt.Errorf("cannot save PairedSignerRecord with empty device id")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	// Serialize to JSON
	data, err := persistence.MarshalPairedSignerRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal PairedSignerRecord: %w", err)
	}

	// Store in Redis using a pipeline for atomicity
	key := r.prefixKey(keyPrefixPairedSigner + record.DeviceID)
	indexKey := r.prefixKey(keySetPairedSigners)
	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, indexKey, record.DeviceID) // Add to index set

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save PairedSignerRecord: %w", err)
	}

	return nil
}

// LoadPairedSigner retrieves a paired signer record by device id
func (r *RedisPersistence) LoadPairedSigner(deviceID string) (*persistence.PairedSignerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	key := r.prefixKey(keyPrefixPairedSigner + deviceID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load PairedSignerRecord: %w", err)
	}

	// Deserialize from JSON
	record, err := persistence.UnmarshalPairedSignerRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal PairedSignerRecord: %w", err)
	}

	return record, nil
}

// ListPairedSigners returns all paired signer records sorted by device id
func (r *RedisPersistence) ListPairedSigners() ([]*persistence.PairedSignerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	indexKey := r.prefixKey(keySetPairedSigners)

	// Get all device ids from the index set
	deviceIDs, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list paired signer ids: %w", err)
	}

	if len(deviceIDs) == 0 {
		return []*persistence.PairedSignerRecord{}, nil
	}

	// Build keys for all records
	keys := make([]string, len(deviceIDs))
	for i, id := range deviceIDs {
		keys[i] = r.prefixKey(keyPrefixPairedSigner + id)
	}

	// Fetch all values using MGET
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch PairedSignerRecords: %w", err)
	}

	// Parse all records
	var records []*persistence.PairedSignerRecord
	for i, val := range values {
		if val == nil {
			// Key was in index but doesn't exist - clean up index
			r.client.SRem(ctx, indexKey, deviceIDs[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for PairedSignerRecord", "key", keys[i])
			continue
		}

		record, err := persistence.UnmarshalPairedSignerRecord([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal PairedSignerRecord, skipping",
				"key", keys[i], "error", err)
			continue
		}

		records = append(records, record)
	}

	// Sort by device id (ascending)
	sort.Slice(records, func(i, j int) bool {
		return records[i].DeviceID < records[j].DeviceID
	})

	return records, nil
}

// DeletePairedSigner removes a paired signer record
func (r *RedisPersistence) DeletePairedSigner(deviceID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	key := r.prefixKey(keyPrefixPairedSigner + deviceID)
	indexKey := r.prefixKey(keySetPairedSigners)
	pipe := r.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, indexKey, deviceID)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete PairedSignerRecord: %w", err)
	}

	return nil
}

// MarkRequestProcessed records a request id in the replay-prevention ledger
func (r *RedisPersistence) MarkRequestProcessed(requestID string, processedAt time.Time) error {
	if requestID == "" {
		return fmt.Errorf("cannot mark empty request id as processed")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	record := &persistence.ProcessedRequest{
		RequestID:   requestID,
		ProcessedAt: processedAt.UnixMilli(),
	}

	data, err := persistence.MarshalProcessedRequest(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ProcessedRequest: %w", err)
	}

	key := r.prefixKey(keyPrefixProcessed + requestID)
	indexKey := r.prefixKey(keySetProcessed)
	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, indexKey, requestID)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark request processed: %w", err)
	}

	return nil
}

// IsRequestProcessed reports whether a request id has been processed
func (r *RedisPersistence) IsRequestProcessed(requestID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	key := r.prefixKey(keyPrefixProcessed + requestID)

	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processed request: %w", err)
	}

	return count > 0, nil
}

// PruneProcessedRequests removes ledger entries older than the cutoff
func (r *RedisPersistence) PruneProcessedRequests(olderThan time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	indexKey := r.prefixKey(keySetProcessed)
	cutoff := olderThan.UnixMilli()

	requestIDs, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list processed request ids: %w", err)
	}

	pruned := 0
	for _, id := range requestIDs {
		key := r.prefixKey(keyPrefixProcessed + id)

		data, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			// Key was in index but doesn't exist - clean up index
			r.client.SRem(ctx, indexKey, id)
			continue
		}
		if err != nil {
			return pruned, fmt.Errorf("failed to load ProcessedRequest: %w", err)
		}

		record, err := persistence.UnmarshalProcessedRequest(data)
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal ProcessedRequest, skipping",
				"key", key, "error", err)
			continue
		}

		if record.ProcessedAt < cutoff {
			pipe := r.client.Pipeline()
			pipe.Del(ctx, key)
			pipe.SRem(ctx, indexKey, id)
			if _, err := pipe.Exec(ctx); err != nil {
				return pruned, fmt.Errorf("failed to prune processed request %s: %w", id, err)
			}
			pruned++
		}
	}

	return pruned, nil
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil // Already closed, idempotent
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	return nil
}
