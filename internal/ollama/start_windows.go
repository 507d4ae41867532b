// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows
// +build windows

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

// Windows-specific creation flags
const (
	// CREATE_NO_WINDOW prevents a console window from being created
	CREATE_NO_WINDOW = 0x08000000
	// DETACHED_PROCESS creates a new process that is detached from the console
	DETACHED_PROCESS = 0x00000008
)

// findServerExecutable searches for ollama.exe in common install paths on
// Windows, falling back to PATH lookup.
func findServerExecutable() (string, error) {
	if path, err := exec.LookPath("ollama.exe"); err == nil {
		return path, nil
	}
	if path, err := exec.LookPath("ollama"); err == nil {
		return path, nil
	}

	possiblePaths := []string{}

	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		possiblePaths = append(possiblePaths, filepath.Join(localAppData, "Programs", "Ollama", "ollama.exe"))
	}

	possiblePaths = append(possiblePaths,
		`C:\Program Files\Ollama\ollama.exe`,
		`C:\Program Files (x86)\Ollama\ollama.exe`,
	)

	if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
		possiblePaths = append(possiblePaths,
			filepath.Join(userProfile, "Ollama", "ollama.exe"),
			filepath.Join(userProfile, ".ollama", "ollama.exe"),
		)
	}

	for _, p := range possiblePaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("ollama.exe not found in PATH or common installation directories")
}

// startServerProcess starts the server on Windows, detached from the
// console so it survives this process.
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

	cmd.Env = os.Environ()

	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: CREATE_NO_WINDOW | DETACHED_PROCESS,
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
		_ = cmd.Process.Release()
	}

	start := time.Now()
	if err := c.waitForReady(ctx, 10*time.Second); err != nil {
		return "", err
	}

	return fmt.Sprintf("server started in %.1fs (%s)", time.Since(start).Seconds(), serverPath), nil
}
