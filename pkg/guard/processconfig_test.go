// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package guard

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type fakeRef struct {
	pid        int32
	refs       *atomic.Int32
	terminated *atomic.Int32
	killErr    error
}

func newFakeRef(pid int32) *fakeRef {
	return &fakeRef{
		pid:        pid,
		refs:       atomic.NewInt32(0),
		terminated: atomic.NewInt32(0),
	}
}

func (r *fakeRef) Pid() int32 { return r.pid }
func (r *fakeRef) Retain()    { r.refs.Inc() }
func (r *fakeRef) Release()   { r.refs.Dec() }
func (r *fakeRef) Terminate() error {
	r.terminated.Inc()
	return r.killErr
}

func TestProcessLaunchAndTermination(t *testing.T) {
	cfg := NewProcessConfig()
	ref := newFakeRef(4242)

	assert.False(t, cfg.IsInitialised())
	_, err := cfg.GetProtectedProcessID()
	assert.Equal(t, ErrNotInitialized, err)

	require.NoError(t, cfg.OnProcessLaunch(4242, ref))
	assert.True(t, cfg.IsInitialised())
	assert.Equal(t, int32(1), ref.refs.Load())

	pid, err := cfg.GetProtectedProcessID()
	require.NoError(t, err)
	assert.Equal(t, int32(4242), pid)

	got, err := cfg.GetProtectedProcessRef()
	require.NoError(t, err)
	assert.Equal(t, ref, got)

	cfg.OnProcessTermination()
	assert.False(t, cfg.IsInitialised())
	assert.Equal(t, int32(0), ref.refs.Load())
	_, err = cfg.GetProtectedProcessID()
	assert.Equal(t, ErrNotInitialized, err)
}

func TestSecondLaunchFailsAndKeepsState(t *testing.T) {
	cfg := NewProcessConfig()
	first := newFakeRef(1000)
	second := newFakeRef(2000)

	require.NoError(t, cfg.OnProcessLaunch(1000, first))

	err := cfg.OnProcessLaunch(2000, second)
	assert.Equal(t, ErrAlreadyProtected, err)

	// The failed launch must not have touched the state nor the refs.
	pid, err := cfg.GetProtectedProcessID()
	require.NoError(t, err)
	assert.Equal(t, int32(1000), pid)
	assert.Equal(t, int32(1), first.refs.Load())
	assert.Equal(t, int32(0), second.refs.Load())
}

func TestTerminationWithoutProtectionIsNoop(t *testing.T) {
	cfg := NewProcessConfig()

	// Termination notifications can race with detach: both orders are fine.
	cfg.OnProcessTermination()
	cfg.OnProcessTermination()
	assert.False(t, cfg.IsInitialised())
}

func TestLaunchTerminationSequences(t *testing.T) {
	cfg := NewProcessConfig()

	for i := 0; i < 5; i++ {
		ref := newFakeRef(int32(100 + i))
		require.NoError(t, cfg.OnProcessLaunch(ref.pid, ref))
		assert.True(t, cfg.IsInitialised())

		cfg.OnProcessTermination()
		assert.False(t, cfg.IsInitialised())
		assert.Equal(t, int32(0), ref.refs.Load())
	}
}

func TestTerminateOnViolation(t *testing.T) {
	cfg := NewProcessConfig()
	ref := newFakeRef(4242)

	// Nothing protected: nothing to terminate.
	cfg.TerminateOnViolation()
	assert.Equal(t, int32(0), ref.terminated.Load())

	require.NoError(t, cfg.OnProcessLaunch(4242, ref))
	cfg.TerminateOnViolation()

	assert.Equal(t, int32(1), ref.terminated.Load())
	assert.False(t, cfg.IsInitialised())
	_, err := cfg.GetProtectedProcessID()
	assert.Equal(t, ErrNotInitialized, err)

	// A repeated verdict for the cleared state is a no-op.
	cfg.TerminateOnViolation()
	assert.Equal(t, int32(1), ref.terminated.Load())
}

func TestConcurrentReadersSeeConsistentState(t *testing.T) {
	cfg := NewProcessConfig()
	ref := newFakeRef(7)
	require.NoError(t, cfg.OnProcessLaunch(7, ref))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				pid, err := cfg.GetProtectedProcessID()
				if err == nil {
					// A reader either sees the full pair or nothing.
					assert.Equal(t, int32(7), pid)
				} else {
					assert.Equal(t, ErrNotInitialized, err)
				}
			}
		}()
	}

	for i := 0; i < 100; i++ {
		cfg.OnProcessTermination()
		require.NoError(t, cfg.OnProcessLaunch(7, ref))
	}
	cfg.OnProcessTermination()

	close(stop)
	wg.Wait()
	assert.Equal(t, int32(0), ref.refs.Load())
}
