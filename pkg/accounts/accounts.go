package accounts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xarmian/voi-wallet-sub002/pkg/types"
)

// ErrAccountNotFound is returned when no account exists for an address.
var ErrAccountNotFound = errors.New("account not found")

const accountsFileName = "accounts.json"

// AccountStore keeps the wallet's account metadata in a single JSON file
// under the data directory. The file is rewritten on every mutation so the
// on-disk copy is never ahead of or behind the in-memory view.
type AccountStore struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	accounts map[string]*types.Account
}

// NewAccountStore opens or creates the account file under dir.
func NewAccountStore(dir string, logger *zap.Logger) (*AccountStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create accounts directory")
	}

	s := &AccountStore{
		path:     filepath.Join(dir, accountsFileName),
		logger:   logger,
		accounts: make(map[string]*types.Account),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	logger.Sugar().Infow("Account store opened",
		"path", s.path,
		"accounts", len(s.accounts),
	)
	return s, nil
}

func (s *AccountStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read accounts file")
	}

	var list []*types.Account
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.Wrap(err, "failed to parse accounts file")
	}
	for _, acct := range list {
		s.accounts[acct.Address] = acct
	}
	return nil
}

// flush must be called with the write lock held.
func (s *AccountStore) flush() error {
	list := make([]*types.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		list = append(list, acct)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Address < list[j].Address })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal accounts")
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write accounts file")
	}
	return nil
}

// Add inserts or replaces an account record.
func (s *AccountStore) Add(acct *types.Account) error {
	if acct == nil || acct.Address == "" {
		return errors.New("cannot add account without address")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *acct
	s.accounts[acct.Address] = &cp
	return s.flush()
}

// FindByAddress returns the account for an address.
func (s *AccountStore) FindByAddress(address string) (*types.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[address]
	if !ok {
		return nil, errors.Wrapf(ErrAccountNotFound, "address %s", address)
	}

	cp := *acct
	return &cp, nil
}

// List returns all accounts sorted by address.
func (s *AccountStore) List() ([]*types.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*types.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		cp := *acct
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Address < list[j].Address })
	return list, nil
}

// ConvertToRemoteSigner rewrites a local account as a remote-signer account
// controlled by the given device. The change is flushed before returning so
// the wallet cannot come back up believing it still holds the key.
func (s *AccountStore) ConvertToRemoteSigner(address, signerDeviceID string) error {
	if signerDeviceID == "" {
		return errors.New("cannot convert account without signer device id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[address]
	if !ok {
		return errors.Wrapf(ErrAccountNotFound, "address %s", address)
	}

	acct.Type = types.AccountTypeRemoteSigner
	acct.SignerDeviceID = signerDeviceID
	if err := s.flush(); err != nil {
		return err
	}

	s.logger.Sugar().Infow("Account converted to remote signer",
		"address", address,
		"signerDeviceId", signerDeviceID,
	)
	return nil
}

// Remove deletes an account record. Idempotent.
func (s *AccountStore) Remove(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[address]; !ok {
		return nil
	}
	delete(s.accounts, address)
	return s.flush()
}
