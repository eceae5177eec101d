// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package group

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaggedWordRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 42, -42, 1 << 40} {
		w := taggedFromInt(v)
		require.False(t, w.isRef())
		require.Equal(t, v, w.asInt())
	}
}

func TestTaggedWordRefRoundTrip(t *testing.T) {
	r := Ref(64)
	w := taggedFromRef(r)
	require.True(t, w.isRef())
	require.Equal(t, r, w.asRef())
}

func TestTaggedFromRefPanicsOnMisalignment(t *testing.T) {
	require.Panics(t, func() { taggedFromRef(Ref(3)) })
}

func TestRefWithin(t *testing.T) {
	require.True(t, Ref(8).within(16))
	require.False(t, Ref(0).within(16), "null ref is never within")
	require.False(t, Ref(16).within(16), "ref must be strictly less than logical size")
	require.False(t, Ref(9).within(16), "unaligned ref is never within")
}
