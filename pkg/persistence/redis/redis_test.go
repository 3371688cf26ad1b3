package redis

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xarmian/voi-wallet-sub002/pkg/logger"
	"github.com/xarmian/voi-wallet-sub002/pkg/persistence"
	"github.com/xarmian/voi-wallet-sub002/pkg/types"
)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis skips the test if Redis is not available
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15, // Use DB 15 for tests to avoid conflicts
		KeyPrefix: "test:" + t.Name() + ":",
	}

	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}

	return rp
}

func TestRedisPersistence_NilConfig(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisPersistence(nil, testLogger)
	require.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, testLogger)
	require.Error(t, err)
}

func TestRedisPersistence_SaveAndLoadDeviceState(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	state := &persistence.DeviceState{
		Role:       types.RoleSigner,
		DeviceID:   "signer-device-1",
		DeviceName: "Offline Signer",
	}

	err := rp.SaveDeviceState(state)
	require.NoError(t, err)

	loaded, err := rp.LoadDeviceState()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, state.Role, loaded.Role)
	assert.Equal(t, state.DeviceID, loaded.DeviceID)
	assert.Equal(t, state.DeviceName, loaded.DeviceName)
}

func TestRedisPersistence_LoadDeviceState_NotFound(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	loaded, err := rp.LoadDeviceState()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisPersistence_PairedSignerLifecycle(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	record := &persistence.PairedSignerRecord{
		DeviceID:     "signer-device-1",
		DeviceName:   "Offline Signer",
		Addresses:    []string{"ADDR1", "ADDR2"},
		LastActivity: 1700000000000,
	}

	err := rp.SavePairedSigner(record)
	require.NoError(t, err)

	loaded, err := rp.LoadPairedSigner("signer-device-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, record.Addresses, loaded.Addresses)

	records, err := rp.ListPairedSigners()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "signer-device-1", records[0].DeviceID)

	err = rp.DeletePairedSigner("signer-device-1")
	require.NoError(t, err)

	loaded, err = rp.LoadPairedSigner("signer-device-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	records, err = rp.ListPairedSigners()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRedisPersistence_ListPairedSigners_Sorted(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	for _, id := range []string{"device-c", "device-a", "device-b"} {
		err := rp.SavePairedSigner(&persistence.PairedSignerRecord{
			DeviceID:  id,
			Addresses: []string{"ADDR"},
		})
		require.NoError(t, err)
		defer func(id string) { _ = rp.DeletePairedSigner(id) }(id)
	}

	records, err := rp.ListPairedSigners()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "device-a", records[0].DeviceID)
	assert.Equal(t, "device-b", records[1].DeviceID)
	assert.Equal(t, "device-c", records[2].DeviceID)
}

func TestRedisPersistence_ReplayLedger(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	processed, err := rp.IsRequestProcessed("req-1")
	require.NoError(t, err)
	assert.False(t, processed)

	err = rp.MarkRequestProcessed("req-1", time.Now())
	require.NoError(t, err)

	processed, err = rp.IsRequestProcessed("req-1")
	require.NoError(t, err)
	assert.True(t, processed)

	// Marking twice is fine
	err = rp.MarkRequestProcessed("req-1", time.Now())
	require.NoError(t, err)
}

func TestRedisPersistence_PruneProcessedRequests(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	now := time.Now()

	err := rp.MarkRequestProcessed("old-req", now.Add(-48*time.Hour))
	require.NoError(t, err)
	err = rp.MarkRequestProcessed("fresh-req", now)
	require.NoError(t, err)

	pruned, err := rp.PruneProcessedRequests(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	processed, err := rp.IsRequestProcessed("old-req")
	require.NoError(t, err)
	assert.False(t, processed)

	processed, err = rp.IsRequestProcessed("fresh-req")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestRedisPersistence_ClosedOperationsFail(t *testing.T) {
	rp := requireRedis(t)

	err := rp.Close()
	require.NoError(t, err)

	// Idempotent
	err = rp.Close()
	require.NoError(t, err)

	err = rp.SaveDeviceState(&persistence.DeviceState{Role: types.RoleWallet})
	assert.Error(t, err)

	_, err = rp.IsRequestProcessed("req-1")
	assert.Error(t, err)

	err = rp.HealthCheck()
	assert.Error(t, err)
}

func TestRedisPersistence_HealthCheck(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	err := rp.HealthCheck()
	require.NoError(t, err)
}

func TestRedisPersistence_ConcurrentAccess(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := "device-" + string(rune('a'+n))
			_ = rp.SavePairedSigner(&persistence.PairedSignerRecord{
				DeviceID:  id,
				Addresses: []string{"ADDR"},
			})
			_, _ = rp.ListPairedSigners()
		}(i)
	}
	wg.Wait()

	records, err := rp.ListPairedSigners()
	require.NoError(t, err)
	assert.Len(t, records, 10)

	for _, rec := range records {
		_ = rp.DeletePairedSigner(rec.DeviceID)
	}
}
