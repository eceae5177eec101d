// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveCommitUpdatesCounters(t *testing.T) {
	before := testutil.ToFloat64(commitsTotal)

	start := StartTimer()
	ObserveCommit(start, 3)

	require.Equal(t, before+1, testutil.ToFloat64(commitsTotal))
	require.Equal(t, float64(3), testutil.ToFloat64(commitTableCount))
}

func TestSetArenaBaseline(t *testing.T) {
	SetArenaBaseline(4096)
	require.Equal(t, float64(4096), testutil.ToFloat64(arenaBaseline))
}
