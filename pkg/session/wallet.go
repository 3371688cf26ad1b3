package session

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xarmian/voi-wallet-sub002/pkg/persistence"
	"github.com/xarmian/voi-wallet-sub002/pkg/protocol"
)

// MatchResponse runs on the wallet device once a scanned response stream is
// complete: it validates the response against the outstanding request,
// bumps the paired signer's activity timestamp and returns the signatures
// re-sorted into index order. A response that does not match the
// outstanding request is rejected; a declined response surfaces as
// ErrRequestDeclined.
func MatchResponse(resp, req *protocol.Payload, signerDeviceID string, store persistence.IDeviceStatePersistence, logger *zap.Logger) ([]protocol.TxnSignature, error) {
	if err := protocol.ValidateResponse(resp, req); err != nil {
		return nil, err
	}

	if signerDeviceID != "" {
		if err := touchPairedSigner(store, signerDeviceID); err != nil {
			logger.Sugar().Warnw("Failed to update paired signer activity",
				"signerDevice", signerDeviceID, "error", err)
		}
	}

	return protocol.SortSignatures(resp.Response.Sigs), nil
}

func touchPairedSigner(store persistence.IDeviceStatePersistence, deviceID string) error {
	record, err := store.LoadPairedSigner(deviceID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("no paired signer %s", deviceID)
	}

	record.LastActivity = time.Now().UnixMilli()
	return store.SavePairedSigner(record)
}
