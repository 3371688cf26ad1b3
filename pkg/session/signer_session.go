package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xarmian/voi-wallet-sub002/pkg/persistence"
	"github.com/xarmian/voi-wallet-sub002/pkg/protocol"
	"github.com/xarmian/voi-wallet-sub002/pkg/txndecode"
)

// Status is the signer-side session state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusReviewing Status = "reviewing"
	StatusSigning   Status = "signing"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

// ReviewItem is one transaction of a pending request, decoded for human
// review before approval.
type ReviewItem struct {
	Index    int
	Signer   string
	AuthAddr string
	Info     *txndecode.DecodedInfo
}

// Progress reports where a signing session stands.
type Progress struct {
	CurrentIndex int
	Total        int
	Status       Status
}

// SignerSession drives the signer device through reviewing and answering
// one scanned request at a time. The channel is optical and serial, so
// concurrent requests are not a supported scenario; the mutex only guards
// against UI callbacks racing each other.
type SignerSession struct {
	mu sync.Mutex

	store  persistence.IDeviceStatePersistence
	signer TransactionSigner
	logger *zap.Logger
	now    func() time.Time

	status  Status
	pending *protocol.Request
	current int
	lastErr error
}

// NewSignerSession creates an idle session bound to the device's durable
// store and a signing backend.
func NewSignerSession(store persistence.IDeviceStatePersistence, signer TransactionSigner, logger *zap.Logger) *SignerSession {
	return &SignerSession{
		store:  store,
		signer: signer,
		logger: logger,
		now:    time.Now,
		status: StatusIdle,
	}
}

// Accept validates a scanned request and, if it passes every protocol rule,
// enters the reviewing state and returns the transactions decoded for
// display. A request failing validation, freshness or the replay check
// never enters the session: the returned error is a rejection, not a
// signing failure.
func (s *SignerSession) Accept(p *protocol.Payload) ([]ReviewItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusIdle {
		return nil, fmt.Errorf("session is %s, not idle", s.status)
	}

	if p == nil || p.Kind != protocol.KindRequest {
		return nil, fmt.Errorf("%w: not a signing request", protocol.ErrInvalidPayload)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Version != protocol.Version {
		return nil, fmt.Errorf("%w: got version %d, want %d", protocol.ErrVersionMismatch, p.Version, protocol.Version)
	}
	if err := protocol.CheckFreshness(p, s.now()); err != nil {
		return nil, err
	}

	processed, err := s.store.IsRequestProcessed(p.Request.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check replay ledger: %w", err)
	}
	if processed {
		return nil, fmt.Errorf("%w: request %s", protocol.ErrRequestReplayed, p.Request.ID)
	}

	items, err := reviewItems(p.Request)
	if err != nil {
		return nil, err
	}

	s.pending = p.Request
	s.status = StatusReviewing
	s.current = 0
	s.lastErr = nil

	s.logger.Sugar().Infow("Request accepted for review",
		"requestId", p.Request.ID, "txns", len(p.Request.Txns), "network", p.Request.NetworkID)

	return items, nil
}

// reviewItems decodes every transaction of the request into a displayable
// summary, in index order. A blob that cannot be decoded at all makes the
// whole request unreviewable.
func reviewItems(req *protocol.Request) ([]ReviewItem, error) {
	txns := sortedTxns(req)

	items := make([]ReviewItem, 0, len(txns))
	for _, txn := range txns {
		blob, err := base64.StdEncoding.DecodeString(txn.Blob)
		if err != nil {
			return nil, fmt.Errorf("%w: txn %d blob is not base64", protocol.ErrMalformedPayload, txn.Index)
		}
		info, err := txndecode.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("%w: txn %d is not a transaction", protocol.ErrMalformedPayload, txn.Index)
		}
		items = append(items, ReviewItem{
			Index:    txn.Index,
			Signer:   txn.Signer,
			AuthAddr: txn.AuthAddr,
			Info:     info,
		})
	}
	return items, nil
}

// Approve signs the pending request. Transactions are signed strictly in
// ascending index order; a failure on any one aborts the whole group with
// the request still addressable for a retry. On success the request id is
// persisted to the replay ledger before the response is returned, so a
// response lost in transit can never cause a double signing.
func (s *SignerSession) Approve(ctx context.Context) (*protocol.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusReviewing && s.status != StatusError {
		return nil, fmt.Errorf("session is %s, nothing to approve", s.status)
	}
	if s.pending == nil {
		return nil, fmt.Errorf("no pending request")
	}

	s.status = StatusSigning
	s.current = 0

	txns := sortedTxns(s.pending)

	sigs := make([]protocol.TxnSignature, 0, len(txns))
	for _, txn := range txns {
		s.current = txn.Index

		address := txn.Signer
		if txn.AuthAddr != "" {
			address = txn.AuthAddr
		}

		blob, err := base64.StdEncoding.DecodeString(txn.Blob)
		if err != nil {
			return nil, s.fail(fmt.Errorf("%w: txn %d blob is not base64", protocol.ErrMalformedPayload, txn.Index))
		}

		signed, err := s.signer.SignTransaction(ctx, address, blob)
		if err != nil {
			return nil, s.fail(fmt.Errorf("signing failed at index %d: %w", txn.Index, err))
		}

		sigs = append(sigs, protocol.TxnSignature{
			Index: txn.Index,
			Blob:  base64.StdEncoding.EncodeToString(signed),
		})
	}

	// Persist before releasing the response. If the response is lost in
	// transit the wallet may re-display the request, and this device must
	// refuse to sign it a second time.
	if err := s.store.MarkRequestProcessed(s.pending.ID, s.now()); err != nil {
		return nil, s.fail(fmt.Errorf("failed to record processed request: %w", err))
	}

	resp := protocol.NewResponse(s.pending.ID, sigs)

	s.logger.Sugar().Infow("Request signed", "requestId", s.pending.ID, "signatures", len(sigs))

	s.status = StatusDone
	s.pending = nil
	s.current = 0

	return resp, nil
}

// Decline produces an error response for the pending request without
// signing anything. The request id is not recorded as processed: the user
// may rescan and approve the same request later.
func (s *SignerSession) Decline(code, message string) (*protocol.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusReviewing && s.status != StatusError {
		return nil, fmt.Errorf("session is %s, nothing to decline", s.status)
	}
	if s.pending == nil {
		return nil, fmt.Errorf("no pending request")
	}

	resp := protocol.NewErrorResponse(s.pending.ID, code, message)

	s.logger.Sugar().Infow("Request declined", "requestId", s.pending.ID, "code", code)

	s.status = StatusDone
	s.pending = nil
	s.current = 0

	return resp, nil
}

// Cancel abandons the session from any non-terminal state without emitting
// a response.
func (s *SignerSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusDone {
		return
	}

	s.status = StatusIdle
	s.pending = nil
	s.current = 0
	s.lastErr = nil
}

// Reset returns a finished session to idle so the next request can be
// scanned.
func (s *SignerSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusIdle
	s.pending = nil
	s.current = 0
	s.lastErr = nil
}

// Progress reports the current index, total and status.
func (s *SignerSession) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	if s.pending != nil {
		total = len(s.pending.Txns)
	}
	return Progress{CurrentIndex: s.current, Total: total, Status: s.status}
}

// Err returns the error that moved the session into the error state.
func (s *SignerSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *SignerSession) fail(err error) error {
	s.status = StatusError
	s.lastErr = err
	s.logger.Sugar().Warnw("Signing session failed", "error", err)
	return err
}

func sortedTxns(req *protocol.Request) []protocol.SignableTxn {
	txns := append([]protocol.SignableTxn{}, req.Txns...)
	sort.Slice(txns, func(i, j int) bool { return txns[i].Index < txns[j].Index })
	return txns
}
