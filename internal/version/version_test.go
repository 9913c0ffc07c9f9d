// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	defer func(pre, build string) {
		PreRelease, BuildMetadata = pre, build
	}(PreRelease, BuildMetadata)

	PreRelease, BuildMetadata = "", ""
	require.Equal(t, "0.1.0", String())

	PreRelease = "rc1"
	require.Equal(t, "0.1.0-rc1", String())

	BuildMetadata = "abc!123"
	require.Equal(t, "0.1.0-rc1+abc123", String())

	PreRelease = "$%"
	require.Equal(t, "0.1.0+abc123", String())
}
