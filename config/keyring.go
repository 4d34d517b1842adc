package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

// KeyringService names the credential store namespace.
const KeyringService = "supabase-mcp"

const keyServiceRoleKey = "service_role_key"

// ErrNoStoredKey reports that the keyring holds no service role key.
var ErrNoStoredKey = errors.New("config: no service role key stored in the keyring")

// KeyStore keeps the service role key in the OS credential store.
type KeyStore struct {
	ring keyring.Keyring
}

// OpenKeyStore opens the native OS keyring. File-based backends are excluded
// so nothing prompts for a password on a headless server.
func OpenKeyStore() (*KeyStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: KeyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.KeyCtlBackend,
			keyring.PassBackend,
		},
		PassPrefix:    KeyringService,
		WinCredPrefix: KeyringService,
	})
	if err != nil {
		return nil, fmt.Errorf("config: open keyring failed: %w", err)
	}
	return NewKeyStore(ring), nil
}

func NewKeyStore(ring keyring.Keyring) *KeyStore {
	return &KeyStore{ring: ring}
}

func (k *KeyStore) ServiceRoleKey() (string, error) {
	item, err := k.ring.Get(keyServiceRoleKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoStoredKey
	}
	if err != nil {
		return "", fmt.Errorf("config: read keyring failed: %w", err)
	}
	return string(item.Data), nil
}

func (k *KeyStore) SetServiceRoleKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("config: service role key is empty")
	}

	err := k.ring.Set(keyring.Item{
		Key:         keyServiceRoleKey,
		Data:        []byte(key),
		Label:       "Supabase service role key",
		Description: "used by supabase-mcp when " + EnvServiceKey + " is unset",
	})
	if err != nil {
		return fmt.Errorf("config: write keyring failed: %w", err)
	}
	return nil
}

// Clear removes the stored key. Clearing an empty keyring is not an error.
func (k *KeyStore) Clear() error {
	err := k.ring.Remove(keyServiceRoleKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("config: clear keyring failed: %w", err)
	}
	return nil
}

// SecretSource supplies a service role key when the environment has none.
type SecretSource interface {
	ServiceRoleKey() (string, error)
}

// ResolveServiceKey fills an empty ServiceRoleKey from src when the keyring
// is enabled. The environment always wins.
func (c *Config) ResolveServiceKey(src SecretSource) error {
	if c.ServiceRoleKey != "" || !c.UseKeyring || src == nil {
		return nil
	}

	key, err := src.ServiceRoleKey()
	if err != nil {
		return err
	}
	c.ServiceRoleKey = strings.TrimSpace(key)
	return nil
}
