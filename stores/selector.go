package stores

import (
	"context"

	"polotno-studio/core"
	"polotno-studio/watchdog"
)

// Backend names which namespace an operation ran against.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Selector routes every call to the remote account store while the account is
// signed in, and to the local store otherwise. The decision is made per call.
// Keys written under one backend stay there until migrated.
type Selector struct {
	local   core.KeyValueStore
	remote  core.KeyValueStore
	account core.Account
	guard   *watchdog.Watchdog
}

func NewSelector(local, remote core.KeyValueStore, account core.Account, guard *watchdog.Watchdog) *Selector {
	return &Selector{local: local, remote: remote, account: account, guard: guard}
}

func (s *Selector) SignedIn() bool {
	return s.account.IsSignedIn()
}

// Local returns the device-local namespace regardless of sign-in state.
func (s *Selector) Local() core.KeyValueStore {
	return s.local
}

// Remote returns the signed-in account's namespace, guarded by the watchdog.
func (s *Selector) Remote() (core.KeyValueStore, error) {
	user, ok := s.account.User()
	if !ok || !s.account.IsSignedIn() {
		return nil, core.ErrNotSignedIn
	}
	store := WithPrefix(s.remote, UserPrefix(user.Subject))
	if s.guard != nil {
		store = watchdog.Wrap(store, s.guard)
	}
	return store, nil
}

// UserPrefix is the remote key prefix of the account subject.
func UserPrefix(subject string) string {
	return "users/" + subject + "/"
}

// Current picks the backend for one operation.
func (s *Selector) Current() (core.KeyValueStore, Backend, error) {
	if !s.account.IsSignedIn() {
		return s.local, BackendLocal, nil
	}
	store, err := s.Remote()
	if err != nil {
		return nil, BackendRemote, err
	}
	return store, BackendRemote, nil
}

func (s *Selector) Read(ctx context.Context, key string) (core.Value, error) {
	store, _, err := s.Current()
	if err != nil {
		return core.Value{}, err
	}
	return store.Read(ctx, key)
}

func (s *Selector) Write(ctx context.Context, key string, value core.Value) error {
	store, _, err := s.Current()
	if err != nil {
		return err
	}
	return store.Write(ctx, key, value)
}

func (s *Selector) Delete(ctx context.Context, key string) error {
	store, _, err := s.Current()
	if err != nil {
		return err
	}
	return store.Delete(ctx, key)
}

func (s *Selector) Mkdir(ctx context.Context, path string, createMissingParents bool) error {
	store, _, err := s.Current()
	if err != nil {
		return err
	}
	if fs, ok := store.(core.FileSystem); ok {
		return fs.Mkdir(ctx, path, createMissingParents)
	}
	return nil
}
