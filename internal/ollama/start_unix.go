// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows
// +build !windows

// Package ollama provides the HTTP client for communicating with the local
// inference server and the decoder for its newline-delimited JSON stream.
package ollama

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// findServerExecutable searches for the ollama binary in common install
// paths on Unix, falling back to PATH lookup.
func findServerExecutable() (string, error) {
	if path, err := exec.LookPath("ollama"); err == nil {
		return path, nil
	}

	possiblePaths := []string{
		"/usr/local/bin/ollama",
		"/usr/bin/ollama",
		"/opt/ollama/ollama",
	}

	if home := os.Getenv("HOME"); home != "" {
		possiblePaths = append(possiblePaths,
			filepath.Join(home, ".local", "bin", "ollama"),
			filepath.Join(home, "bin", "ollama"),
		)
	}

	// macOS application bundle location
	possiblePaths = append(possiblePaths,
		"/Applications/Ollama.app/Contents/Resources/ollama",
	)

	for _, p := range possiblePaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("ollama not found in PATH or common installation directories")
}

// startServerProcess starts the server on Unix/macOS. The child gets its own
// process group so it keeps running after this process exits.
func (c *Client) startServerProcess(ctx context.Context) (string, error) {
	serverPath, err := findServerExecutable()
	if err != nil {
		return "", &ClientError{
			Type:    ErrTypeConnection,
			Message: "failed to find server executable",
			Cause:   err,
		}
	}

	cmd := exec.Command(serverPath, "serve")

	// Pass environment through so GPU-related vars reach the server.
	cmd.Env = os.Environ()

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return "", &ClientError{
			Type:    ErrTypeConnection,
			Message: fmt.Sprintf("failed to start server (path: %s)", serverPath),
			Cause:   err,
		}
	}

	if cmd.Process != nil {
		// Non-fatal if release fails; the process is already detached.
		_ = cmd.Process.Release()
	}

	start := time.Now()
	if err := c.waitForReady(ctx, 10*time.Second); err != nil {
		return "", err
	}

	return fmt.Sprintf("server started in %.1fs (%s)", time.Since(start).Seconds(), serverPath), nil
}
