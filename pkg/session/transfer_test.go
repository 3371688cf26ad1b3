package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xarmian/voi-wallet-sub002/pkg/fountain"
	"github.com/xarmian/voi-wallet-sub002/pkg/keystore"
	"github.com/xarmian/voi-wallet-sub002/pkg/logger"
	"github.com/xarmian/voi-wallet-sub002/pkg/persistence/memory"
	"github.com/xarmian/voi-wallet-sub002/pkg/protocol"
	"github.com/xarmian/voi-wallet-sub002/pkg/types"
)

// fakeAccountStore records conversions.
type fakeAccountStore struct {
	accounts    map[string]*types.Account
	converted   map[string]string // address -> deviceID
	convertFail bool
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{
		accounts:  make(map[string]*types.Account),
		converted: make(map[string]string),
	}
}

func (f *fakeAccountStore) FindByAddress(address string) (*types.Account, error) {
	acct, ok := f.accounts[address]
	if !ok {
		return nil, fmt.Errorf("no account %s", address)
	}
	return acct, nil
}

func (f *fakeAccountStore) ConvertToRemoteSigner(address, signerDeviceID string) error {
	if f.convertFail {
		return fmt.Errorf("conversion failed")
	}
	f.converted[address] = signerDeviceID
	return nil
}

type transferFixture struct {
	walletKS *keystore.KeyStore
	signerKS *keystore.KeyStore
	store    *memory.MemoryPersistence
	accounts *fakeAccountStore
	session  *TransferSession
	address  string
}

func newTransferFixture(t *testing.T) *transferFixture {
	t.Helper()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	walletKS, err := keystore.NewKeyStore(t.TempDir(), testLogger)
	require.NoError(t, err)
	signerKS, err := keystore.NewKeyStore(t.TempDir(), testLogger)
	require.NoError(t, err)

	address, err := walletKS.GenerateAccount("1234")
	require.NoError(t, err)

	store := memory.NewMemoryPersistence()
	t.Cleanup(func() { _ = store.Close() })

	accounts := newFakeAccountStore()
	accounts.accounts[address] = &types.Account{Address: address, Type: types.AccountTypeLocal}

	return &transferFixture{
		walletKS: walletKS,
		signerKS: signerKS,
		store:    store,
		accounts: accounts,
		session:  NewTransferSession(address, walletKS, accounts, store, testLogger),
		address:  address,
	}
}

// runSignerSide plays the signer device: scans the export frames, imports
// the key and returns the confirmation frames the wallet will scan.
func (fx *transferFixture) runSignerSide(t *testing.T, frames *fountain.EncodeResult, exportCode string) []string {
	t.Helper()

	dec := fountain.NewDecoder()
	var data []byte
	for _, frame := range frames.Frames {
		outcome, err := dec.ProcessFrame(frame)
		require.NoError(t, err)
		if outcome.Complete {
			require.True(t, outcome.Success)
			data = outcome.Data
			break
		}
	}
	require.NotNil(t, data)

	payload, err := protocol.Decode(string(data))
	require.NoError(t, err)

	imported, err := ImportKeyExport(payload, exportCode, "5678", fx.signerKS)
	require.NoError(t, err)
	require.Equal(t, fx.address, imported)

	conf, err := ConfirmTransfer("signer-dev-1", "Offline Signer", fx.address, "5678", fx.signerKS)
	require.NoError(t, err)

	text, err := protocol.Encode(conf)
	require.NoError(t, err)
	enc, err := fountain.Encode([]byte(text), fountain.DefaultConfig)
	require.NoError(t, err)
	return enc.Frames
}

func (fx *transferFixture) advanceToConfirmDeletion(t *testing.T) {
	t.Helper()

	frames, err := fx.session.AcknowledgeDisclaimer("1234", "EXPORT-CODE-7")
	require.NoError(t, err)
	require.Equal(t, StateDisplayingQR, fx.session.State())

	confFrames := fx.runSignerSide(t, frames, "EXPORT-CODE-7")

	require.NoError(t, fx.session.BeginScanning())
	for _, frame := range confFrames {
		done, err := fx.session.ProcessFrame(frame)
		require.NoError(t, err)
		if done {
			break
		}
	}
	require.Equal(t, StateConfirmDeletion, fx.session.State())
}

func TestTransferSession_HappyPath(t *testing.T) {
	fx := newTransferFixture(t)
	fx.advanceToConfirmDeletion(t)

	require.NoError(t, fx.session.ConfirmDeletion())
	assert.Equal(t, StateSuccess, fx.session.State())

	// Key is gone from the wallet, account converted, pairing recorded
	assert.False(t, fx.walletKS.HasKey(fx.address))
	assert.Equal(t, "signer-dev-1", fx.accounts.converted[fx.address])

	record, err := fx.store.LoadPairedSigner("signer-dev-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, record.CanSignFor(fx.address))

	// The signer device now holds the key
	assert.True(t, fx.signerKS.HasKey(fx.address))
}

func TestTransferSession_CancelAtConfirmDeletionKeepsKey(t *testing.T) {
	fx := newTransferFixture(t)
	fx.advanceToConfirmDeletion(t)

	fx.session.Cancel()
	assert.Equal(t, StateDisclaimer, fx.session.State())

	// The private key was never deleted and is still retrievable
	sk, err := fx.walletKS.SigningKey(fx.address, "1234")
	require.NoError(t, err)
	assert.NotNil(t, sk)
	assert.Empty(t, fx.accounts.converted)
}

func TestTransferSession_WrongPIN(t *testing.T) {
	fx := newTransferFixture(t)

	_, err := fx.session.AcknowledgeDisclaimer("0000", "EXPORT-CODE-7")
	require.Error(t, err)
	assert.True(t, errors.Is(err, keystore.ErrAuthenticationFailed))
	assert.Equal(t, StateError, fx.session.State())

	// Not a scan failure: no shortcut back to the QR display
	assert.Error(t, fx.session.RetryScan())
}

func TestTransferSession_WrongExportCodeOnSignerSide(t *testing.T) {
	fx := newTransferFixture(t)

	frames, err := fx.session.AcknowledgeDisclaimer("1234", "EXPORT-CODE-7")
	require.NoError(t, err)

	dec := fountain.NewDecoder()
	var data []byte
	for _, frame := range frames.Frames {
		outcome, ferr := dec.ProcessFrame(frame)
		require.NoError(t, ferr)
		if outcome.Complete {
			data = outcome.Data
			break
		}
	}
	payload, err := protocol.Decode(string(data))
	require.NoError(t, err)

	_, err = ImportKeyExport(payload, "WRONG-CODE", "5678", fx.signerKS)
	require.Error(t, err)
	assert.False(t, fx.signerKS.HasKey(fx.address))
}

func TestTransferSession_IgnoresJunkFrames(t *testing.T) {
	fx := newTransferFixture(t)

	_, err := fx.session.AcknowledgeDisclaimer("1234", "EXPORT-CODE-7")
	require.NoError(t, err)
	require.NoError(t, fx.session.BeginScanning())

	for _, junk := range []string{"", "garbage", "vqf1:m:not-a-frame"} {
		done, err := fx.session.ProcessFrame(junk)
		require.NoError(t, err)
		assert.False(t, done)
	}
	assert.Equal(t, StateScanningResponse, fx.session.State())
}

func TestTransferSession_DeclinedOnDevice(t *testing.T) {
	fx := newTransferFixture(t)

	_, err := fx.session.AcknowledgeDisclaimer("1234", "EXPORT-CODE-7")
	require.NoError(t, err)
	require.NoError(t, fx.session.BeginScanning())

	declined := protocol.NewErrorResponse("transfer", "user_declined", "rejected on device")
	text, err := protocol.Encode(declined)
	require.NoError(t, err)
	enc, err := fountain.Encode([]byte(text), fountain.DefaultConfig)
	require.NoError(t, err)

	_, err = fx.session.ProcessFrame(enc.Frames[0])
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrRequestDeclined))
	assert.Equal(t, StateError, fx.session.State())
}

func TestTransferSession_ConfirmationForWrongAccount(t *testing.T) {
	fx := newTransferFixture(t)

	_, err := fx.session.AcknowledgeDisclaimer("1234", "EXPORT-CODE-7")
	require.NoError(t, err)

	// Signer confirms a different account than the one being transferred
	otherAddr, err := fx.signerKS.GenerateAccount("5678")
	require.NoError(t, err)
	conf, err := ConfirmTransfer("signer-dev-1", "Offline Signer", otherAddr, "5678", fx.signerKS)
	require.NoError(t, err)

	text, err := protocol.Encode(conf)
	require.NoError(t, err)
	enc, err := fountain.Encode([]byte(text), fountain.DefaultConfig)
	require.NoError(t, err)

	require.NoError(t, fx.session.BeginScanning())
	_, err = fx.session.ProcessFrame(enc.Frames[0])
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrResponseMismatch))
	assert.Equal(t, StateError, fx.session.State())

	// Scan failures allow returning to the QR display without a new export
	require.NoError(t, fx.session.RetryScan())
	assert.Equal(t, StateDisplayingQR, fx.session.State())
}

func TestTransferSession_ConversionFailureAfterDeletion(t *testing.T) {
	fx := newTransferFixture(t)
	fx.advanceToConfirmDeletion(t)

	fx.accounts.convertFail = true

	err := fx.session.ConfirmDeletion()
	require.Error(t, err)
	assert.Equal(t, StateError, fx.session.State())

	// The key was already deleted; the flow must not pretend otherwise
	assert.False(t, fx.walletKS.HasKey(fx.address))
}
