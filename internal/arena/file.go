// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package arena

import (
	"os"
	"path/filepath"

	log "github.com/golang/glog"
)

func syncDir(dir string) error {
	fd, err := os.Open(dir)
	if err != nil {
		log.Errorf("arena: failed to open directory %s: %s", dir, err)
		return err
	}
	if err := fd.Sync(); err != nil {
		log.Errorf("arena: failed to fsync directory %s: %s", dir, err)
		fd.Close()
		return err
	}
	return fd.Close()
}

// Rename atomically replaces newpath with oldpath's contents and fsyncs
// the containing directory, so a crash right after cannot leave the
// destination half-written. The compact writer (C4) does not call it:
// Group.Write returns the streaming image as bytes.
func Rename(oldpath, newpath string) error {
	if err := os.Rename(oldpath, newpath); err != nil {
		return err
	}
	return syncDir(filepath.Dir(newpath))
}
