// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"os"
)

// ReadKeyFile loads the first non-blank line of path that does not
// start with "#" into a protected buffer. age-keygen writes identity
// files with "# created:" and "# public key:" header comments, which
// this skips. The heap copy of the file is zeroed before returning.
func ReadKeyFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	defer Zero(data)

	for line := range bytes.SplitSeq(data, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 || trimmed[0] == '#' {
			continue
		}
		return NewFromBytes(trimmed)
	}
	return nil, fmt.Errorf("key file %s contains no key", path)
}
