package session

import (
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xarmian/voi-wallet-sub002/pkg/encryption"
	"github.com/xarmian/voi-wallet-sub002/pkg/fountain"
	"github.com/xarmian/voi-wallet-sub002/pkg/persistence"
	"github.com/xarmian/voi-wallet-sub002/pkg/protocol"
)

// TransferState is one step of the transfer-account-to-signer flow.
type TransferState string

const (
	StateDisclaimer       TransferState = "disclaimer"
	StateGenerating       TransferState = "generating"
	StateDisplayingQR     TransferState = "displaying_qr"
	StateScanningResponse TransferState = "scanning_response"
	StateVerifying        TransferState = "verifying"
	StateConfirmDeletion  TransferState = "confirm_deletion"
	StateConverting       TransferState = "converting"
	StateSuccess          TransferState = "success"
	StateError            TransferState = "error"
)

// TransferSession walks the wallet device through exporting a private key
// to an air-gapped signer and converting the source account into a
// remote-signer account. The flow is linear and forward-only; the only way
// back is a full reset, except that a failed scan may return to the QR
// display without redoing the key export.
type TransferSession struct {
	vault    KeyVault
	accounts AccountStore
	store    persistence.IDeviceStatePersistence
	sealer   *encryption.PassphraseSealer
	cfg      fountain.Config
	logger   *zap.Logger
	now      func() time.Time

	address string

	state      TransferState
	frames     *fountain.EncodeResult
	decoder    *fountain.Decoder
	lastErr    error
	scanFailed bool

	deviceID   string
	deviceName string
}

// NewTransferSession starts the flow for one source account, parked at the
// disclaimer gate.
func NewTransferSession(address string, vault KeyVault, accounts AccountStore, store persistence.IDeviceStatePersistence, logger *zap.Logger) *TransferSession {
	return &TransferSession{
		vault:    vault,
		accounts: accounts,
		store:    store,
		sealer:   encryption.NewPassphraseSealer(),
		cfg:      fountain.DefaultConfig,
		logger:   logger,
		now:      time.Now,
		address:  address,
		state:    StateDisclaimer,
	}
}

// State returns the current flow state.
func (t *TransferSession) State() TransferState { return t.state }

// Err returns the error that moved the flow into the error state.
func (t *TransferSession) Err() error { return t.lastErr }

// Frames returns the export frame stream for re-display.
func (t *TransferSession) Frames() *fountain.EncodeResult { return t.frames }

// AcknowledgeDisclaimer passes the disclaimer gate, retrieves the source
// key under authentication, seals it under the one-time export code and
// produces the frame stream to display. The raw key material is cleared as
// soon as it has been sealed.
func (t *TransferSession) AcknowledgeDisclaimer(pin, exportCode string) (*fountain.EncodeResult, error) {
	if t.state != StateDisclaimer {
		return nil, fmt.Errorf("transfer is in %s, not %s", t.state, StateDisclaimer)
	}

	t.state = StateGenerating

	sk, err := t.vault.SigningKey(t.address, pin)
	if err != nil {
		return nil, t.fail(fmt.Errorf("authentication required: %w", err), false)
	}

	box, err := t.sealer.Seal(sk, exportCode)
	zeroBytes(sk)
	if err != nil {
		return nil, t.fail(fmt.Errorf("failed to seal key: %w", err), false)
	}

	payload := protocol.NewKeyExport(
		t.address,
		base64.StdEncoding.EncodeToString(box.Ciphertext),
		base64.StdEncoding.EncodeToString(box.Salt),
		base64.StdEncoding.EncodeToString(box.Nonce),
	)

	text, err := protocol.Encode(payload)
	if err != nil {
		return nil, t.fail(fmt.Errorf("failed to encode export payload: %w", err), false)
	}

	frames, err := fountain.Encode([]byte(text), t.cfg)
	if err != nil {
		return nil, t.fail(fmt.Errorf("failed to build export frames: %w", err), false)
	}

	t.frames = frames
	t.state = StateDisplayingQR

	t.logger.Sugar().Infow("Key export prepared",
		"address", t.address, "frames", frames.FrameCount, "multiFrame", frames.IsMultiFrame)

	return frames, nil
}

// BeginScanning moves from displaying the export to scanning the signer
// device's confirmation.
func (t *TransferSession) BeginScanning() error {
	if t.state != StateDisplayingQR {
		return fmt.Errorf("transfer is in %s, not %s", t.state, StateDisplayingQR)
	}

	t.decoder = fountain.NewDecoder()
	t.state = StateScanningResponse
	return nil
}

// ProcessFrame feeds one scanned confirmation frame. Malformed frames are
// ignorable; done is true once the confirmation has been fully received and
// verified, at which point the flow sits at the deletion confirmation gate.
func (t *TransferSession) ProcessFrame(text string) (done bool, err error) {
	if t.state != StateScanningResponse {
		return false, fmt.Errorf("transfer is in %s, not %s", t.state, StateScanningResponse)
	}

	outcome, err := t.decoder.ProcessFrame(text)
	if err != nil && !outcome.Complete {
		// Ignorable per-frame scan error; progress is untouched.
		t.logger.Sugar().Debugw("Ignoring unusable frame", "error", err)
		return false, nil
	}
	if !outcome.Complete {
		return false, nil
	}
	if !outcome.Success {
		return false, t.fail(fmt.Errorf("confirmation stream failed: %w", err), true)
	}

	return true, t.verify(outcome.Data)
}

// verify checks the received confirmation: it must be a pairing payload
// with exactly one account record for the source address, and the record's
// proof must verify against the key now held on the signer device.
func (t *TransferSession) verify(data []byte) error {
	t.state = StateVerifying

	p, err := protocol.Decode(string(data))
	if err != nil {
		return t.fail(fmt.Errorf("confirmation is not a valid payload: %w", err), true)
	}

	if p.Kind == protocol.KindResponse && p.Response != nil && !p.Response.OK {
		return t.fail(fmt.Errorf("%w: %s", protocol.ErrRequestDeclined, p.Response.Err.Message), false)
	}
	if p.Kind != protocol.KindPairing {
		return t.fail(fmt.Errorf("%w: expected a pairing confirmation, got %s", protocol.ErrInvalidPayload, p.Kind), true)
	}
	if len(p.Pairing.Accounts) != 1 {
		return t.fail(fmt.Errorf("%w: confirmation must carry exactly one account, got %d",
			protocol.ErrInvalidPayload, len(p.Pairing.Accounts)), true)
	}

	acct := p.Pairing.Accounts[0]
	if acct.Address != t.address {
		return t.fail(fmt.Errorf("%w: confirmation is for %s, expected %s",
			protocol.ErrResponseMismatch, acct.Address, t.address), true)
	}

	if err := VerifyPairingProof(&acct, p.Pairing.DeviceID); err != nil {
		return t.fail(fmt.Errorf("confirmation proof rejected: %w", err), true)
	}

	t.deviceID = p.Pairing.DeviceID
	t.deviceName = p.Pairing.DeviceName
	t.state = StateConfirmDeletion

	t.logger.Sugar().Infow("Transfer confirmation verified",
		"address", t.address, "signerDevice", t.deviceID)

	return nil
}

// ConfirmDeletion is the second, explicit gate before the irreversible
// step: it deletes the local key and converts the account to a
// remote-signer account bound to the verified device.
func (t *TransferSession) ConfirmDeletion() error {
	if t.state != StateConfirmDeletion {
		return fmt.Errorf("transfer is in %s, not %s", t.state, StateConfirmDeletion)
	}

	t.state = StateConverting

	if err := t.vault.DeleteKey(t.address); err != nil {
		// Nothing was deleted; the flow can be fully retried.
		return t.fail(fmt.Errorf("failed to delete local key: %w", err), false)
	}

	if err := t.accounts.ConvertToRemoteSigner(t.address, t.deviceID); err != nil {
		// The local key is already gone and cannot be resurrected. The
		// signer device holds the only copy now; surface loudly instead of
		// continuing silently.
		t.logger.Sugar().Errorw("Account conversion failed after key deletion; key exists only on signer device",
			"address", t.address, "signerDevice", t.deviceID, "error", err)
		return t.fail(fmt.Errorf("account conversion failed after key deletion: %w", err), false)
	}

	if err := t.registerPairedSigner(); err != nil {
		t.logger.Sugar().Warnw("Failed to persist paired signer record", "error", err)
	}

	t.state = StateSuccess

	t.logger.Sugar().Infow("Account transferred to signer device",
		"address", t.address, "signerDevice", t.deviceID)

	return nil
}

// registerPairedSigner records or extends the paired-signer entry for the
// verified device.
func (t *TransferSession) registerPairedSigner() error {
	record, err := t.store.LoadPairedSigner(t.deviceID)
	if err != nil {
		return err
	}
	if record == nil {
		record = &persistence.PairedSignerRecord{
			DeviceID:   t.deviceID,
			DeviceName: t.deviceName,
		}
	}
	if !record.CanSignFor(t.address) {
		record.Addresses = append(record.Addresses, t.address)
	}
	record.LastActivity = t.now().UnixMilli()

	return t.store.SavePairedSigner(record)
}

// Cancel abandons the flow from any non-terminal state. Cancelling at the
// deletion gate is always safe: the key is only ever deleted inside
// ConfirmDeletion.
func (t *TransferSession) Cancel() {
	if t.state == StateSuccess {
		return
	}

	t.state = StateDisclaimer
	t.frames = nil
	t.decoder = nil
	t.lastErr = nil
	t.scanFailed = false
	t.deviceID = ""
	t.deviceName = ""
}

// RetryScan returns to the QR display after a scan failure without redoing
// the key export. Only scan failures are retryable this way; any other
// error requires a full reset through Cancel.
func (t *TransferSession) RetryScan() error {
	if t.state != StateError || !t.scanFailed {
		return fmt.Errorf("transfer is not in a retryable scan failure")
	}
	if t.frames == nil {
		return fmt.Errorf("no export frames to re-display")
	}

	t.state = StateDisplayingQR
	t.decoder = nil
	t.lastErr = nil
	t.scanFailed = false
	return nil
}

func (t *TransferSession) fail(err error, scanFailure bool) error {
	t.state = StateError
	t.lastErr = err
	t.scanFailed = scanFailure
	t.logger.Sugar().Warnw("Transfer flow failed", "address", t.address, "error", err)
	return err
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
