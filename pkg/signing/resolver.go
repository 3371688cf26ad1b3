// Package signing decides which signing backend handles a set of accounts
// that must co-sign one atomic operation.
package signing

import (
	"fmt"
	"sort"

	"github.com/xarmian/voi-wallet-sub002/pkg/types"
)

// Method is the resolved signing backend for one operation.
type Method string

const (
	MethodLocal          Method = "local"
	MethodHardwareDevice Method = "hardwareDevice"
	MethodRemoteSigner   Method = "remoteSigner"
	MethodCannotSign     Method = "cannotSign"
)

// Result is the outcome of resolution. Reason is set only for
// MethodCannotSign; SignerDeviceIDs only for MethodRemoteSigner.
type Result struct {
	Method          Method
	SignerDeviceIDs []string
	Reason          string
}

// Resolve picks the one backend for an operation involving the given
// accounts. A single atomic group may mix account types, so precedence is
// fixed: a watch account anywhere makes the whole group unsignable; a
// remote-signer account routes the group to the air-gapped path even when
// signable local accounts are present; then hardware, then local.
//
// Resolve is pure and never fails; unsignable inputs come back as
// MethodCannotSign with a reason.
func Resolve(accounts []types.Account) Result {
	if len(accounts) == 0 {
		return Result{Method: MethodCannotSign, Reason: "no accounts provided"}
	}

	var (
		hasRemote   bool
		hasHardware bool
		hasLocal    bool
		deviceIDs   = make(map[string]struct{})
	)

	for _, acct := range accounts {
		switch acct.Type {
		case types.AccountTypeWatch:
			return Result{
				Method: MethodCannotSign,
				Reason: fmt.Sprintf("account %s is watch-only and can never contribute a signature", acct.Address),
			}
		case types.AccountTypeRemoteSigner:
			hasRemote = true
			if acct.SignerDeviceID != "" {
				deviceIDs[acct.SignerDeviceID] = struct{}{}
			}
		case types.AccountTypeHardware:
			hasHardware = true
		case types.AccountTypeLocal:
			hasLocal = true
		}
	}

	switch {
	case hasRemote:
		ids := make([]string, 0, len(deviceIDs))
		for id := range deviceIDs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return Result{Method: MethodRemoteSigner, SignerDeviceIDs: ids}
	case hasHardware:
		return Result{Method: MethodHardwareDevice}
	case hasLocal:
		return Result{Method: MethodLocal}
	default:
		return Result{Method: MethodCannotSign, Reason: "no signable accounts"}
	}
}
