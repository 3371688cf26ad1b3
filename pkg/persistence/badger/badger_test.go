package badger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xarmian/voi-wallet-sub002/pkg/logger"
	"github.com/xarmian/voi-wallet-sub002/pkg/persistence"
	"github.com/xarmian/voi-wallet-sub002/pkg/types"
)

func newTestPersistence(t *testing.T) *BadgerPersistence {
	t.Helper()
	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bp.Close() })
	return bp
}

func TestBadgerPersistence_SaveAndLoadDeviceState(t *testing.T) {
	bp := newTestPersistence(t)

	state := &persistence.DeviceState{
		Role:       types.RoleSigner,
		DeviceID:   "signer-device-1",
		DeviceName: "Offline Signer",
	}

	err := bp.SaveDeviceState(state)
	require.NoError(t, err)

	loaded, err := bp.LoadDeviceState()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, state.Role, loaded.Role)
	assert.Equal(t, state.DeviceID, loaded.DeviceID)
	assert.Equal(t, state.DeviceName, loaded.DeviceName)
}

func TestBadgerPersistence_LoadDeviceState_NotFound(t *testing.T) {
	bp := newTestPersistence(t)

	loaded, err := bp.LoadDeviceState()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestBadgerPersistence_SaveDeviceState_Nil(t *testing.T) {
	bp := newTestPersistence(t)

	err := bp.SaveDeviceState(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil DeviceState")
}

func TestBadgerPersistence_SaveDeviceState_Overwrites(t *testing.T) {
	bp := newTestPersistence(t)

	err := bp.SaveDeviceState(&persistence.DeviceState{Role: types.RoleWallet})
	require.NoError(t, err)

	err = bp.SaveDeviceState(&persistence.DeviceState{
		Role:     types.RoleSigner,
		DeviceID: "signer-device-1",
	})
	require.NoError(t, err)

	loaded, err := bp.LoadDeviceState()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, types.RoleSigner, loaded.Role)
	assert.Equal(t, "signer-device-1", loaded.DeviceID)
}

func TestBadgerPersistence_SaveAndLoadPairedSigner(t *testing.T) {
	bp := newTestPersistence(t)

	record := &persistence.PairedSignerRecord{
		DeviceID:     "signer-device-1",
		DeviceName:   "Offline Signer",
		Addresses:    []string{"ADDR1", "ADDR2"},
		LastActivity: 1700000000000,
	}

	err := bp.SavePairedSigner(record)
	require.NoError(t, err)

	loaded, err := bp.LoadPairedSigner("signer-device-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, record.DeviceID, loaded.DeviceID)
	assert.Equal(t, record.DeviceName, loaded.DeviceName)
	assert.Equal(t, record.Addresses, loaded.Addresses)
	assert.Equal(t, record.LastActivity, loaded.LastActivity)
}

func TestBadgerPersistence_LoadPairedSigner_NotFound(t *testing.T) {
	bp := newTestPersistence(t)

	loaded, err := bp.LoadPairedSigner("unknown-device")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestBadgerPersistence_SavePairedSigner_EmptyDeviceID(t *testing.T) {
	bp := newTestPersistence(t)

	err := bp.SavePairedSigner(&persistence.PairedSignerRecord{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty device id")
}

func TestBadgerPersistence_ListPairedSigners_Sorted(t *testing.T) {
	bp := newTestPersistence(t)

	for _, id := range []string{"device-c", "device-a", "device-b"} {
		err := bp.SavePairedSigner(&persistence.PairedSignerRecord{
			DeviceID:  id,
			Addresses: []string{"ADDR"},
		})
		require.NoError(t, err)
	}

	records, err := bp.ListPairedSigners()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "device-a", records[0].DeviceID)
	assert.Equal(t, "device-b", records[1].DeviceID)
	assert.Equal(t, "device-c", records[2].DeviceID)
}

func TestBadgerPersistence_ListPairedSigners_Empty(t *testing.T) {
	bp := newTestPersistence(t)

	records, err := bp.ListPairedSigners()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBadgerPersistence_DeletePairedSigner(t *testing.T) {
	bp := newTestPersistence(t)

	err := bp.SavePairedSigner(&persistence.PairedSignerRecord{
		DeviceID:  "signer-device-1",
		Addresses: []string{"ADDR1"},
	})
	require.NoError(t, err)

	err = bp.DeletePairedSigner("signer-device-1")
	require.NoError(t, err)

	loaded, err := bp.LoadPairedSigner("signer-device-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestBadgerPersistence_DeletePairedSigner_Idempotent(t *testing.T) {
	bp := newTestPersistence(t)

	err := bp.DeletePairedSigner("never-existed")
	require.NoError(t, err)
}

func TestBadgerPersistence_MarkAndCheckProcessedRequest(t *testing.T) {
	bp := newTestPersistence(t)

	processed, err := bp.IsRequestProcessed("req-1")
	require.NoError(t, err)
	assert.False(t, processed)

	err = bp.MarkRequestProcessed("req-1", time.Now())
	require.NoError(t, err)

	processed, err = bp.IsRequestProcessed("req-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestBadgerPersistence_MarkRequestProcessed_Idempotent(t *testing.T) {
	bp := newTestPersistence(t)

	err := bp.MarkRequestProcessed("req-1", time.Now())
	require.NoError(t, err)

	err = bp.MarkRequestProcessed("req-1", time.Now())
	require.NoError(t, err)

	processed, err := bp.IsRequestProcessed("req-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestBadgerPersistence_MarkRequestProcessed_EmptyID(t *testing.T) {
	bp := newTestPersistence(t)

	err := bp.MarkRequestProcessed("", time.Now())
	require.Error(t, err)
}

func TestBadgerPersistence_PruneProcessedRequests(t *testing.T) {
	bp := newTestPersistence(t)

	now := time.Now()

	err := bp.MarkRequestProcessed("old-req", now.Add(-48*time.Hour))
	require.NoError(t, err)
	err = bp.MarkRequestProcessed("fresh-req", now)
	require.NoError(t, err)

	pruned, err := bp.PruneProcessedRequests(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	processed, err := bp.IsRequestProcessed("old-req")
	require.NoError(t, err)
	assert.False(t, processed)

	processed, err = bp.IsRequestProcessed("fresh-req")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestBadgerPersistence_PruneProcessedRequests_NothingStale(t *testing.T) {
	bp := newTestPersistence(t)

	err := bp.MarkRequestProcessed("req-1", time.Now())
	require.NoError(t, err)

	pruned, err := bp.PruneProcessedRequests(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)
}

func TestBadgerPersistence_PersistenceAcrossReopen(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)

	err = bp.SaveDeviceState(&persistence.DeviceState{
		Role:     types.RoleSigner,
		DeviceID: "signer-device-1",
	})
	require.NoError(t, err)

	err = bp.MarkRequestProcessed("req-1", time.Now())
	require.NoError(t, err)

	err = bp.Close()
	require.NoError(t, err)

	// Reopen and verify state survived
	bp2, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	defer func() { _ = bp2.Close() }()

	loaded, err := bp2.LoadDeviceState()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "signer-device-1", loaded.DeviceID)

	processed, err := bp2.IsRequestProcessed("req-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestBadgerPersistence_ClosedOperationsFail(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)

	err = bp.Close()
	require.NoError(t, err)

	// Close again should be idempotent
	err = bp.Close()
	require.NoError(t, err)

	err = bp.SaveDeviceState(&persistence.DeviceState{Role: types.RoleWallet})
	assert.Error(t, err)

	_, err = bp.LoadDeviceState()
	assert.Error(t, err)

	_, err = bp.IsRequestProcessed("req-1")
	assert.Error(t, err)

	err = bp.HealthCheck()
	assert.Error(t, err)
}

func TestBadgerPersistence_HealthCheck(t *testing.T) {
	bp := newTestPersistence(t)

	err := bp.HealthCheck()
	require.NoError(t, err)
}

func TestBadgerPersistence_ConcurrentAccess(t *testing.T) {
	bp := newTestPersistence(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			record := &persistence.PairedSignerRecord{
				DeviceID:  "device-" + string(rune('a'+n)),
				Addresses: []string{"ADDR"},
			}
			_ = bp.SavePairedSigner(record)
			_, _ = bp.ListPairedSigners()
		}(i)
	}
	wg.Wait()

	records, err := bp.ListPairedSigners()
	require.NoError(t, err)
	assert.Len(t, records, 10)
}

func TestStoreLogger_DemotesBadgerInfoToDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sl := newStoreLogger(zap.New(core))

	sl.Infof("compaction %d done", 7)
	sl.Debugf("value log gc")
	sl.Warningf("slow %s", "fsync")
	sl.Errorf("vlog %s", "corrupt")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "compaction 7 done", entries[0].Message)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "devicestore", entries[3].LoggerName)
}
