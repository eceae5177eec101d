// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build !linux && !darwin

package arena

import (
	"errors"
	"io"
	"os"
)

// Non-unix platforms fall back to reading the whole file into memory
// and writing it back out on Detach; there is no portable mmap in the
// standard library, and golang.org/x/sys only covers unix and windows
// separately.
func mmap(f *os.File, size int, readOnly bool) ([]byte, error) {
	data := make([]byte, size)
	_, err := f.ReadAt(data, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data, nil
}

func unmap(data []byte) error { return nil }

func msync(data []byte) error { return nil }
