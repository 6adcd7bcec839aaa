// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"qlnotebook/cli/internal/config"
	"qlnotebook/cli/internal/dsn"
	"qlnotebook/cli/internal/engine"
	"qlnotebook/cli/internal/engine/pgengine"
	"qlnotebook/cli/internal/engine/remote"
	"qlnotebook/cli/internal/engine/resultfile"
	"qlnotebook/cli/internal/engine/sqliteengine"
	"qlnotebook/cli/internal/execution"
	"qlnotebook/cli/internal/hostfs"
	"qlnotebook/cli/internal/keychain"
	"qlnotebook/cli/internal/notebook"
	"qlnotebook/cli/internal/store"
)

// session wires one notebook to the configured engine.
type session struct {
	uri      string
	fs       *hostfs.FS
	store    *store.Store
	decoder  *resultfile.Decoder
	engine   engine.Engine
	database string
	close    func() error
}

// openedEngine is an engine together with the identity of the database it
// queries.
type openedEngine struct {
	engine   engine.Engine
	database string
	close    func() error
}

// openEngine builds the engine selected by c.
func openEngine(ctx context.Context, c config.Config) (*openedEngine, error) {
	results := resultfile.NewDir(c.ResultsDir)
	switch c.Engine {
	case config.EngineSQLite:
		path, err := dsn.Normalize(c.SQLite.Path)
		if err != nil {
			return nil, err
		}
		e, err := sqliteengine.Open(path, results, logger)
		if err != nil {
			return nil, err
		}
		return &openedEngine{engine: e, database: path, close: e.Close}, nil

	case config.EngineRemote:
		opts := remote.Options{Insecure: c.Remote.Insecure}
		if km, err := keychain.GetManager(); err == nil {
			if tok, err := km.LoadRemoteToken(); err == nil {
				opts.Token = tok
			}
		}
		if tok := os.Getenv("QLNB_REMOTE_TOKEN"); tok != "" {
			opts.Token = tok
		}
		cl, err := remote.Dial(c.Remote.Addr, results, opts)
		if err != nil {
			return nil, err
		}
		return &openedEngine{engine: cl, database: c.Remote.Addr, close: cl.Close}, nil

	default:
		var secrets dsn.SecretStore
		if km, err := keychain.GetManager(); err == nil {
			secrets = km
		}
		conn, _, err := dsn.Resolve(secrets)
		if err != nil {
			return nil, err
		}
		info, err := dsn.Parse(conn)
		if err != nil {
			return nil, err
		}
		if info.Kind == dsn.KindSQLite {
			e, err := sqliteengine.Open(info.Database, results, logger)
			if err != nil {
				return nil, err
			}
			return &openedEngine{engine: e, database: info.Database, close: e.Close}, nil
		}
		e, err := pgengine.Connect(ctx, conn, results, logger)
		if err != nil {
			return nil, err
		}
		return &openedEngine{engine: e, database: info.Database, close: func() error { e.Close(); return nil }}, nil
	}
}

// openSession loads the notebook at path, creating an empty one when the
// file does not exist and create is set. The engine is opened only when
// withEngine is set.
func openSession(ctx context.Context, path string, create, withEngine bool) (*session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	s := &session{
		uri:   "file://" + filepath.ToSlash(abs),
		fs:    hostfs.New(),
		store: store.New(logger),
		close: func() error { return nil },
	}

	data, err := s.fs.ReadFile(ctx, s.uri)
	switch {
	case err == nil:
		if _, _, err := s.store.Open(s.uri, data); err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && create:
		s.store.Create(s.uri)
	default:
		return nil, err
	}

	s.decoder, err = resultfile.NewDecoder(resultfile.DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	if !withEngine {
		return s, nil
	}
	oe, err := openEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.engine, s.database, s.close = oe.engine, oe.database, oe.close
	return s, nil
}

func (s *session) controller(opts execution.Options) *execution.Controller {
	opts.Database = s.database
	opts.EngineName = cfg.Engine
	opts.PageSize = cfg.PageSize
	opts.Logger = logger
	return execution.New(s.store, s.engine, s.decoder, opts)
}

// save writes the notebook to target, or to itself when target is empty.
func (s *session) save(ctx context.Context, target string) error {
	if target != "" {
		abs, err := filepath.Abs(target)
		if err != nil {
			return err
		}
		target = "file://" + filepath.ToSlash(abs)
	}
	_, err := s.store.Save(ctx, s.uri, target, s.fs)
	return err
}

func (s *session) snapshot() (*notebook.Document, error) {
	return s.store.Snapshot(s.uri)
}

func (s *session) Close() error {
	s.store.Close(s.uri)
	return s.close()
}
