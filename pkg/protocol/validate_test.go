package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithTxnCount(n int) *Payload {
	txns := make([]SignableTxn, n)
	for i := range txns {
		txns[i] = SignableTxn{Index: i, Blob: "dHhu", Signer: "SENDER"}
	}
	return NewRequest("voimain-v1.0", "hash", txns, nil)
}

func TestValidateResponse_OK(t *testing.T) {
	req := requestWithTxnCount(3)
	resp := NewResponse(req.Request.ID, []TxnSignature{
		{Index: 2, Blob: "cw=="},
		{Index: 0, Blob: "cw=="},
		{Index: 1, Blob: "cw=="},
	})

	require.NoError(t, ValidateResponse(resp, req))
}

func TestValidateResponse_IDMismatch(t *testing.T) {
	req := requestWithTxnCount(1)
	resp := NewResponse("some-other-id", []TxnSignature{{Index: 0, Blob: "cw=="}})

	err := ValidateResponse(resp, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseMismatch)
}

func TestValidateResponse_VersionMismatch(t *testing.T) {
	req := requestWithTxnCount(1)
	resp := NewResponse(req.Request.ID, []TxnSignature{{Index: 0, Blob: "cw=="}})
	resp.Version = 2

	err := ValidateResponse(resp, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseMismatch)
}

func TestValidateResponse_SignatureCountMismatch(t *testing.T) {
	req := requestWithTxnCount(3)
	resp := NewResponse(req.Request.ID, []TxnSignature{
		{Index: 0, Blob: "cw=="},
		{Index: 1, Blob: "cw=="},
	})

	err := ValidateResponse(resp, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseMismatch)
}

func TestValidateResponse_IndexGap(t *testing.T) {
	req := requestWithTxnCount(2)
	resp := NewResponse(req.Request.ID, []TxnSignature{
		{Index: 0, Blob: "cw=="},
		{Index: 0, Blob: "cw=="}, // duplicate, 1 never covered
	})

	err := ValidateResponse(resp, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseMismatch)
}

func TestValidateResponse_Declined(t *testing.T) {
	req := requestWithTxnCount(1)
	resp := NewErrorResponse(req.Request.ID, "user_rejected", "declined on device")

	err := ValidateResponse(resp, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestDeclined)

	var declined *DeclinedError
	require.True(t, errors.As(err, &declined))
	assert.Equal(t, "user_rejected", declined.Code)
	assert.Equal(t, "declined on device", declined.Message)
}

func TestCheckFreshness(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"current", 0, true},
		{"nine minutes old", -9 * time.Minute, true},
		{"older than expiry", -11 * time.Minute, false},
		{"ten seconds ahead", 10 * time.Second, true},
		{"five minutes ahead", 5 * time.Minute, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := requestWithTxnCount(1)
			req.Ts = now.Add(tc.offset).UnixMilli()

			err := CheckFreshness(req, now)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrRequestExpired)
			}
		})
	}
}

func TestSortSignatures(t *testing.T) {
	sigs := []TxnSignature{
		{Index: 2, Blob: "Yw=="},
		{Index: 0, Blob: "YQ=="},
		{Index: 1, Blob: "Yg=="},
	}

	sorted := SortSignatures(sigs)
	assert.Equal(t, []int{0, 1, 2}, []int{sorted[0].Index, sorted[1].Index, sorted[2].Index})
	// input untouched
	assert.Equal(t, 2, sigs[0].Index)
}
