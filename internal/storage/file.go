// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable key-value persistence for engine state.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jeranaias/localchat/internal/util"
)

// FileStore persists each record as a JSON file in a directory, written
// atomically (temp file + fsync + rename).
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Put writes the full value under name, replacing any previous value.
func (s *FileStore) Put(name string, value []byte) error {
	return util.AtomicWriteFile(s.path(name), value, 0644)
}

// Get reads the full value stored under name.
func (s *FileStore) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %q: %w", name, err)
	}
	return data, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}
