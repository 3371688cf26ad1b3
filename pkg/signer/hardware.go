package signer

import (
	"context"
	"fmt"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	sdktypes "github.com/algorand/go-algorand-sdk/v2/types"
	"go.uber.org/zap"
)

const deviceEnumTimeout = 3 * time.Second

// DeviceTransport abstracts the link to an attached hardware signing device.
// Implementations wrap the USB or BLE channel for a specific device family.
type DeviceTransport interface {
	// ListAddresses returns the addresses the connected device can sign for
	ListAddresses(ctx context.Context) ([]string, error)

	// SignTransaction asks the device to sign an unsigned transaction and
	// returns the msgpack-encoded signed transaction. Blocks until the user
	// confirms on the device or the context is cancelled.
	SignTransaction(ctx context.Context, address string, txnBlob []byte) ([]byte, error)
}

// HardwareSigner signs transactions through an attached hardware device.
// Transient transport errors are retried with exponential backoff.
type HardwareSigner struct {
	transport DeviceTransport
	retry     RetryPolicy
	logger    *zap.Logger
}

var _ ITransactionSigner = (*HardwareSigner)(nil)

// NewHardwareSigner creates a signer backed by a hardware device transport
func NewHardwareSigner(transport DeviceTransport, logger *zap.Logger) *HardwareSigner {
	return &HardwareSigner{
		transport: transport,
		retry:     DefaultRetryPolicy,
		logger:    logger,
	}
}

// SignTransaction forwards the transaction to the device for confirmation
func (s *HardwareSigner) SignTransaction(ctx context.Context, address string, txnBlob []byte) ([]byte, error) {
	// Reject garbage before waking the device
	var txn sdktypes.Transaction
	if err := msgpack.Decode(txnBlob, &txn); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	var stxBytes []byte
	err := s.retry.do(ctx, func() error {
		var err error
		stxBytes, err = s.transport.SignTransaction(ctx, address, txnBlob)
		if err != nil {
			s.logger.Sugar().Warnw("Hardware signing attempt failed", "address", address, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("hardware signing failed: %w", err)
	}

	return stxBytes, nil
}

// CanSignFor reports whether the connected device holds the address
func (s *HardwareSigner) CanSignFor(address string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), deviceEnumTimeout)
	defer cancel()

	addresses, err := s.transport.ListAddresses(ctx)
	if err != nil {
		s.logger.Sugar().Warnw("Failed to enumerate device addresses", "error", err)
		return false
	}

	for _, addr := range addresses {
		if addr == address {
			return true
		}
	}
	return false
}
