// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain keeps qlnb secrets in the OS credential store: the
// PostgreSQL DSN and the bearer token of a remote engine. On macOS the
// security command is used directly; elsewhere the 99designs/keyring native
// backends are used. There is no file fallback.
package keychain

import (
	"errors"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
)

var (
	globalManager *Manager
	mu            sync.Mutex
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("key not found")

// Manager provides thread-safe access to the OS keychain.
type Manager struct {
	mu      sync.RWMutex
	ring    keyring.Keyring
	backend keychainBackend
}

type keychainBackend interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// ServiceName identifies the qlnb namespace in the credential store.
const ServiceName = "qlnb"

// Keys used for storing secrets.
const (
	KeyEngineDSN   = "engine_dsn"
	KeyRemoteToken = "remote_token"
)

// NewManager opens the OS keychain.
func NewManager() (*Manager, error) {
	if runtime.GOOS == "darwin" {
		if backend, err := newSecurityBackend(); err == nil {
			return &Manager{backend: backend}, nil
		}
	}
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return NewWithRing(ring), nil
}

// NewWithRing wraps an already opened keyring.
func NewWithRing(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
}

// GetManager returns the process-wide manager, retrying initialization
// after a failure.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalManager != nil {
		return globalManager, nil
	}
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	globalManager = m
	return m, nil
}

func openRing() (keyring.Keyring, error) {
	var allowed []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		allowed = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		allowed = []keyring.BackendType{keyring.WinCredBackend}
	case "linux":
		allowed = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	default:
		return nil, errors.New("secure storage not supported on this OS")
	}
	return keyring.Open(keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowed,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	})
}

func (m *Manager) set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend != nil {
		return m.backend.Set(key, value)
	}
	return m.ring.Set(keyring.Item{Key: key, Data: []byte(value)})
}

func (m *Manager) get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var v string
	if m.backend != nil {
		s, err := m.backend.Get(key)
		if err != nil {
			return "", err
		}
		v = s
	} else {
		it, err := m.ring.Get(key)
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		if err != nil {
			return "", err
		}
		v = string(it.Data)
	}
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Manager) remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend != nil {
		return m.backend.Delete(key)
	}
	if err := m.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}

// SaveDSN stores the engine DSN.
func (m *Manager) SaveDSN(dsn string) error { return m.set(KeyEngineDSN, dsn) }

// LoadDSN returns the engine DSN or ErrNotFound.
func (m *Manager) LoadDSN() (string, error) { return m.get(KeyEngineDSN) }

// ClearDSN removes the engine DSN.
func (m *Manager) ClearDSN() error { return m.remove(KeyEngineDSN) }

// SaveRemoteToken stores the remote engine bearer token.
func (m *Manager) SaveRemoteToken(token string) error { return m.set(KeyRemoteToken, token) }

// LoadRemoteToken returns the remote engine token or ErrNotFound.
func (m *Manager) LoadRemoteToken() (string, error) { return m.get(KeyRemoteToken) }

// ClearAll removes every qlnb secret.
func (m *Manager) ClearAll() error {
	return errors.Join(m.remove(KeyEngineDSN), m.remove(KeyRemoteToken))
}
