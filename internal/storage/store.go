// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable key-value persistence for engine state.
//
// State is stored as whole named records: every save overwrites the full
// record, every load reads it back. There is no partial or incremental
// format. Two backends are provided: a single-file SQLite database and a
// directory of atomically written JSON files.
package storage

import "errors"

// ErrRecordNotFound is returned when a named record does not exist.
// Use errors.Is(err, ErrRecordNotFound) to check for this error.
var ErrRecordNotFound = errors.New("record not found")

// Store is the durable key-value contract. Implementations must make Put
// atomic with respect to crashes: a reader never observes a partial record.
type Store interface {
	// Put writes the full value under name, replacing any previous value.
	Put(name string, value []byte) error

	// Get reads the full value stored under name.
	// Returns ErrRecordNotFound if the record does not exist.
	Get(name string) ([]byte, error)

	// Close releases underlying resources.
	Close() error
}
