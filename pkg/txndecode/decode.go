// Package txndecode renders a wire-encoded unsigned transaction into a
// human-auditable summary shown on the signer device before signing.
//
// The summary exists so a human can visually confirm intent; it is never the
// basis for a security decision. Cryptographic verification happens in the
// signing path.
package txndecode

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// Category is the display classification of a transaction.
type Category string

const (
	CategoryPayment       Category = "payment"
	CategoryAssetTransfer Category = "assetTransfer"
	CategoryAppCall       Category = "appCall"
	CategoryAssetConfig   Category = "assetConfig"
	CategoryAssetFreeze   Category = "assetFreeze"
	CategoryKeyReg        Category = "keyReg"
	CategoryStateProof    Category = "stateProof"
	CategoryUnknown       Category = "unknown"
)

// DecodedInfo is the human-auditable summary of one unsigned transaction.
type DecodedInfo struct {
	Category    Category `json:"category"`
	Sender      string   `json:"sender"`
	Receiver    string   `json:"receiver,omitempty"`
	Amount      uint64   `json:"amount,omitempty"`
	Fee         uint64   `json:"fee"`
	AssetID     uint64   `json:"assetId,omitempty"`
	AppID       uint64   `json:"appId,omitempty"`
	Note        string   `json:"note,omitempty"`
	FirstValid  uint64   `json:"firstValid"`
	LastValid   uint64   `json:"lastValid"`
	GenesisID   string   `json:"genesisId,omitempty"`
	GenesisHash string   `json:"genesisHash"`
	RekeyTo     string   `json:"rekeyTo,omitempty"`
	CloseTo     string   `json:"closeTo,omitempty"`
}

// Decode parses a msgpack-encoded unsigned transaction into its display
// summary. Unrecognized transaction types degrade to CategoryUnknown rather
// than failing.
func Decode(blob []byte) (*DecodedInfo, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("cannot decode empty transaction blob")
	}

	var txn types.Transaction
	if err := msgpack.Decode(blob, &txn); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	info := &DecodedInfo{
		Category:    classify(txn.Type),
		Sender:      txn.Sender.String(),
		Fee:         uint64(txn.Fee),
		Note:        decodeNote(txn.Note),
		FirstValid:  uint64(txn.FirstValid),
		LastValid:   uint64(txn.LastValid),
		GenesisID:   txn.GenesisID,
		GenesisHash: base64.StdEncoding.EncodeToString(txn.GenesisHash[:]),
		RekeyTo:     addressOrEmpty(txn.RekeyTo),
	}

	switch info.Category {
	case CategoryPayment:
		info.Receiver = txn.Receiver.String()
		info.Amount = uint64(txn.Amount)
		info.CloseTo = addressOrEmpty(txn.CloseRemainderTo)
	case CategoryAssetTransfer:
		info.Receiver = txn.AssetReceiver.String()
		info.Amount = txn.AssetAmount
		info.AssetID = uint64(txn.XferAsset)
		info.CloseTo = addressOrEmpty(txn.AssetCloseTo)
	case CategoryAppCall:
		info.AppID = uint64(txn.ApplicationID)
	case CategoryAssetConfig:
		info.AssetID = uint64(txn.ConfigAsset)
	case CategoryAssetFreeze:
		info.Receiver = addressOrEmpty(txn.FreezeAccount)
		info.AssetID = uint64(txn.FreezeAsset)
	}

	return info, nil
}

// classify maps the wire type tag to a display category.
func classify(t types.TxType) Category {
	switch t {
	case types.PaymentTx:
		return CategoryPayment
	case types.AssetTransferTx:
		return CategoryAssetTransfer
	case types.ApplicationCallTx:
		return CategoryAppCall
	case types.AssetConfigTx:
		return CategoryAssetConfig
	case types.AssetFreezeTx:
		return CategoryAssetFreeze
	case types.KeyRegistrationTx:
		return CategoryKeyReg
	case types.StateProofTx:
		return CategoryStateProof
	default:
		return CategoryUnknown
	}
}

// decodeNote renders the note as text when it is valid UTF-8 and as a hex
// dump otherwise. Never fails.
func decodeNote(note []byte) string {
	if len(note) == 0 {
		return ""
	}
	if utf8.Valid(note) {
		return string(note)
	}
	return "0x" + hex.EncodeToString(note)
}

func addressOrEmpty(addr types.Address) string {
	if addr == (types.Address{}) {
		return ""
	}
	return addr.String()
}
