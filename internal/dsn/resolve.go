// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"errors"
	"os"
	"strings"
)

// Environment variables consulted by Resolve, in priority order.
const (
	EnvDSN         = "QLNB_DSN"
	EnvDatabaseURL = "DATABASE_URL"
)

// ErrNoDSN is returned when no source provides a DSN.
var ErrNoDSN = errors.New("no database connection configured; run: qlnb connect")

// SecretStore supplies a stored DSN.
type SecretStore interface {
	LoadDSN() (string, error)
}

// Source names where a resolved DSN came from.
type Source string

const (
	SourceEnv      Source = "env"
	SourceKeychain Source = "keychain"
)

// Resolve returns the normalized DSN from QLNB_DSN, then DATABASE_URL, then
// the keychain. store may be nil.
func Resolve(store SecretStore) (string, Source, error) {
	return resolve(os.Getenv, store)
}

func resolve(getenv func(string) string, store SecretStore) (string, Source, error) {
	for _, key := range []string{EnvDSN, EnvDatabaseURL} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := Normalize(v)
			return n, SourceEnv, err
		}
	}
	if store != nil {
		if v, err := store.LoadDSN(); err == nil && strings.TrimSpace(v) != "" {
			n, err := Normalize(v)
			return n, SourceKeychain, err
		}
	}
	return "", "", ErrNoDSN
}
