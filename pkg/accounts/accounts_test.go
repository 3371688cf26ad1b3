package accounts

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xarmian/voi-wallet-sub002/pkg/types"
)

func newTestStore(t *testing.T) *AccountStore {
	t.Helper()
	store, err := NewAccountStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestAccountStore_AddAndFind(t *testing.T) {
	store := newTestStore(t)

	err := store.Add(&types.Account{Address: "ADDR1", Name: "Main", Type: types.AccountTypeLocal})
	require.NoError(t, err)

	acct, err := store.FindByAddress("ADDR1")
	require.NoError(t, err)
	assert.Equal(t, "Main", acct.Name)
	assert.Equal(t, types.AccountTypeLocal, acct.Type)
}

func TestAccountStore_FindUnknownAddress(t *testing.T) {
	store := newTestStore(t)

	_, err := store.FindByAddress("NOPE")
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}

func TestAccountStore_ListSorted(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add(&types.Account{Address: "CCC", Type: types.AccountTypeWatch}))
	require.NoError(t, store.Add(&types.Account{Address: "AAA", Type: types.AccountTypeLocal}))
	require.NoError(t, store.Add(&types.Account{Address: "BBB", Type: types.AccountTypeLocal}))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "AAA", list[0].Address)
	assert.Equal(t, "BBB", list[1].Address)
	assert.Equal(t, "CCC", list[2].Address)
}

func TestAccountStore_ConvertToRemoteSigner(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add(&types.Account{Address: "ADDR1", Type: types.AccountTypeLocal}))
	require.NoError(t, store.ConvertToRemoteSigner("ADDR1", "signer-dev-1"))

	acct, err := store.FindByAddress("ADDR1")
	require.NoError(t, err)
	assert.Equal(t, types.AccountTypeRemoteSigner, acct.Type)
	assert.Equal(t, "signer-dev-1", acct.SignerDeviceID)
}

func TestAccountStore_ConvertUnknownAddress(t *testing.T) {
	store := newTestStore(t)

	err := store.ConvertToRemoteSigner("NOPE", "signer-dev-1")
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}

func TestAccountStore_ConvertRequiresDeviceID(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add(&types.Account{Address: "ADDR1", Type: types.AccountTypeLocal}))
	assert.Error(t, store.ConvertToRemoteSigner("ADDR1", ""))
}

func TestAccountStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewAccountStore(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Add(&types.Account{Address: "ADDR1", Type: types.AccountTypeLocal}))
	require.NoError(t, store.ConvertToRemoteSigner("ADDR1", "signer-dev-1"))

	reopened, err := NewAccountStore(dir, zap.NewNop())
	require.NoError(t, err)

	acct, err := reopened.FindByAddress("ADDR1")
	require.NoError(t, err)
	assert.Equal(t, types.AccountTypeRemoteSigner, acct.Type)
	assert.Equal(t, "signer-dev-1", acct.SignerDeviceID)
}

func TestAccountStore_CopiesDoNotAliasStore(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add(&types.Account{Address: "ADDR1", Name: "Original", Type: types.AccountTypeLocal}))

	acct, err := store.FindByAddress("ADDR1")
	require.NoError(t, err)
	acct.Name = "Mutated"

	again, err := store.FindByAddress("ADDR1")
	require.NoError(t, err)
	assert.Equal(t, "Original", again.Name)
}

func TestAccountStore_RemoveIdempotent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add(&types.Account{Address: "ADDR1", Type: types.AccountTypeLocal}))
	require.NoError(t, store.Remove("ADDR1"))
	require.NoError(t, store.Remove("ADDR1"))

	_, err := store.FindByAddress("ADDR1")
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}
