// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive chat REPL.
//
// Plain input lines go to the active chat; slash commands manage sessions
// and inspect state. Input history persists across runs.
package cli
