// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities for reading and writing the files given on the command line.
package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ExpandHome replaces a leading "~" or "~user" in filePath by the corresponding home directory.
// Other paths are returned unchanged.
func ExpandHome(filePath string) (string, error) {
	if !strings.HasPrefix(filePath, "~") {
		return filePath, nil
	}
	userName, rest, _ := strings.Cut(filePath[1:], "/")
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", filePath)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}

// ReadFile is like os.ReadFile, but expands the home directory first, and the error names the
// contents being read, as in "failed to read vocabulary from ...".
func ReadFile(filePath, contents string) ([]byte, error) {
	expanded, err := ExpandHome(filePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s from %q", contents, filePath)
	}
	return data, nil
}

// MkdirAll expands the home directory and creates the directory with its parents if needed.
// It returns the expanded path.
func MkdirAll(dirPath string) (string, error) {
	expanded, err := ExpandHome(dirPath)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(expanded, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create directory %q", dirPath)
	}
	return expanded, nil
}
