// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !windows && !plan9

// Package limits raises the process resource limits the daemon needs.
package limits

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	fileLimitWant = 2048
	fileLimitMin  = 1024
)

// SetLimits raises the open file limit to fileLimitWant, or to the hard limit
// when that is lower.  It fails when the hard limit is below fileLimitMin.
func SetLimits() error {
	var rLimit unix.Rlimit

	err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		return err
	}
	if rLimit.Cur > fileLimitWant {
		return nil
	}
	if rLimit.Max < fileLimitMin {
		return fmt.Errorf("need at least %v file descriptors",
			fileLimitMin)
	}
	if rLimit.Max < fileLimitWant {
		rLimit.Cur = rLimit.Max
	} else {
		rLimit.Cur = fileLimitWant
	}
	err = unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		// Fall back to the minimum.
		rLimit.Cur = fileLimitMin
		return unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit)
	}
	return nil
}
