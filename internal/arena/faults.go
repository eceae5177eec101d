// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package arena

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	log "github.com/golang/glog"

	"github.com/groupdb/groupdb/pkg/failures"
)

// faultInjector lets an operator (or a test) make Alloc fail with a
// configurable probability, the same shape raft's msgDropper uses to
// simulate a flaky network: a key registered with the failure
// service, a probability map, and a handler that swaps it in.
type faultInjector struct {
	lock sync.Mutex
	prob map[string]float32
	rand *rand.Rand
}

var injector = &faultInjector{
	prob: make(map[string]float32),
	rand: rand.New(rand.NewSource(1)),
}

func init() {
	failures.Register("arena.alloc_fail_prob", injector.handler)
}

func (f *faultInjector) handler(cfg json.RawMessage) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if cfg == nil {
		f.prob = make(map[string]float32)
		return nil
	}
	var m map[string]float32
	if err := json.Unmarshal(cfg, &m); err != nil {
		return err
	}
	log.Infof("arena: updated fault injection config: %s", string(cfg))
	f.prob = m
	return nil
}

// shouldFail reports whether key's configured failure probability
// fires on this call. A key with no configured probability never
// fails; this is a no-op in production operation.
func (f *faultInjector) shouldFail(key string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	p, ok := f.prob[key]
	if !ok || p <= 0 {
		return false
	}
	return f.rand.Float32() < p
}

// SetAllocFailProbability is the direct (non-HTTP) way tests reach for
// fault injection, bypassing the JSON round trip InitWithPathAndMux
// would otherwise require.
func SetAllocFailProbability(p float32) {
	injector.lock.Lock()
	defer injector.lock.Unlock()
	injector.prob["alloc"] = p
}

func injectedAllocFailure() error {
	if injector.shouldFail("alloc") {
		return fmt.Errorf("arena: injected allocation failure")
	}
	return nil
}
