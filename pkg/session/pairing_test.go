package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xarmian/voi-wallet-sub002/pkg/keystore"
	"github.com/xarmian/voi-wallet-sub002/pkg/logger"
	"github.com/xarmian/voi-wallet-sub002/pkg/persistence/memory"
	"github.com/xarmian/voi-wallet-sub002/pkg/protocol"
)

func newPairingFixture(t *testing.T) (*keystore.KeyStore, *memory.MemoryPersistence, []string) {
	t.Helper()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	ks, err := keystore.NewKeyStore(t.TempDir(), testLogger)
	require.NoError(t, err)

	addr1, err := ks.GenerateAccount("5678")
	require.NoError(t, err)
	addr2, err := ks.GenerateAccount("5678")
	require.NoError(t, err)

	store := memory.NewMemoryPersistence()
	t.Cleanup(func() { _ = store.Close() })

	return ks, store, []string{addr1, addr2}
}

func TestBuildAndImportPairing(t *testing.T) {
	ks, store, addrs := newPairingFixture(t)

	export, err := BuildPairingExport("signer-dev-1", "Offline Signer", addrs, "5678", ks)
	require.NoError(t, err)
	require.Equal(t, protocol.KindPairing, export.Kind)
	require.Len(t, export.Pairing.Accounts, 2)

	// Round-trip through the wire form, the way the wallet receives it
	text, err := protocol.Encode(export)
	require.NoError(t, err)
	decoded, err := protocol.Decode(text)
	require.NoError(t, err)

	record, err := ImportPairing(decoded, store)
	require.NoError(t, err)
	assert.Equal(t, "signer-dev-1", record.DeviceID)
	assert.Equal(t, "Offline Signer", record.DeviceName)
	for _, addr := range addrs {
		assert.True(t, record.CanSignFor(addr))
	}

	// The record is durable
	loaded, err := store.LoadPairedSigner("signer-dev-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.ElementsMatch(t, addrs, loaded.Addresses)
}

func TestImportPairing_RejectsBadProof(t *testing.T) {
	ks, store, addrs := newPairingFixture(t)

	export, err := BuildPairingExport("signer-dev-1", "Offline Signer", addrs, "5678", ks)
	require.NoError(t, err)

	// Proof from a different device id does not verify
	export.Pairing.DeviceID = "impostor-device"

	_, err = ImportPairing(export, store)
	require.Error(t, err)

	loaded, err := store.LoadPairedSigner("impostor-device")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestImportPairing_MergesWithExistingRecord(t *testing.T) {
	ks, store, addrs := newPairingFixture(t)

	first, err := BuildPairingExport("signer-dev-1", "Offline Signer", addrs[:1], "5678", ks)
	require.NoError(t, err)
	_, err = ImportPairing(first, store)
	require.NoError(t, err)

	second, err := BuildPairingExport("signer-dev-1", "Offline Signer", addrs[1:], "5678", ks)
	require.NoError(t, err)
	record, err := ImportPairing(second, store)
	require.NoError(t, err)

	assert.ElementsMatch(t, addrs, record.Addresses)
}

func TestImportPairing_RejectsWrongKind(t *testing.T) {
	_, store, _ := newPairingFixture(t)

	resp := protocol.NewErrorResponse("req-1", "declined", "no")
	_, err := ImportPairing(resp, store)
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrInvalidPayload))
}

func TestMatchResponse_UpdatesActivity(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	ks, store, addrs := newPairingFixture(t)

	export, err := BuildPairingExport("signer-dev-1", "Offline Signer", addrs, "5678", ks)
	require.NoError(t, err)
	record, err := ImportPairing(export, store)
	require.NoError(t, err)
	before := record.LastActivity

	req := makeRequest(t, 2)
	resp := protocol.NewResponse(req.Request.ID, []protocol.TxnSignature{
		{Index: 1, Blob: "c2ln"},
		{Index: 0, Blob: "c2ln"},
	})

	sigs, err := MatchResponse(resp, req, "signer-dev-1", store, testLogger)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, 0, sigs[0].Index)
	assert.Equal(t, 1, sigs[1].Index)

	updated, err := store.LoadPairedSigner("signer-dev-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, updated.LastActivity, before)
}

func TestMatchResponse_RejectsUnknownID(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	store := memory.NewMemoryPersistence()
	t.Cleanup(func() { _ = store.Close() })

	req := makeRequest(t, 1)
	resp := protocol.NewResponse("some-other-id", []protocol.TxnSignature{{Index: 0, Blob: "c2ln"}})

	_, err := MatchResponse(resp, req, "", store, testLogger)
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrResponseMismatch))
}
