// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build linux || darwin

package arena

import (
	"os"

	"golang.org/x/sys/unix"
)

func mmap(f *os.File, size int, readOnly bool) ([]byte, error) {
	prot := unix.PROT_READ
	if !readOnly {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func unmap(data []byte) error {
	return unix.Munmap(data)
}

func msync(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}
