// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kernel

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/DataDog/process-guard/pkg/util/log"
)

// Interface maps check descriptors to request/response exchanges with the
// kernel component. Invoke is synchronous from the calling worker's point of
// view; the dispatcher's worker pool exists precisely so this blocking call
// never runs on the scheduling thread.
type Interface struct {
	transport Transport
	requestID *atomic.Uint64
}

// New returns an Interface speaking over the given transport.
func New(transport Transport) *Interface {
	return &Interface{
		transport: transport,
		requestID: atomic.NewUint64(0),
	}
}

// Invoke runs one check exchange for the given descriptor, stamped with the
// protected process id observed at issue time.
//
// Error taxonomy: ErrTimeout when the descriptor's deadline expires (retried
// on the next interval, not a verdict), ErrKernelCallFailed on any transport
// failure. A response with TamperDetected set is a verdict and is returned
// without error: deciding what to do with it is the dispatcher's job.
func (i *Interface) Invoke(ctx context.Context, desc Descriptor, pid int32) (*Response, error) {
	id := i.requestID.Inc()
	req := encodeRequest(id, pid, desc.Kind)

	ctx, cancel := context.WithTimeout(ctx, desc.Timeout)
	defer cancel()

	out, err := i.transport.Invoke(ctx, desc.Code, req, responseHeaderSize+desc.ResponseSize)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrTimeout, "check %s request %d", desc.Kind, id)
		}
		return nil, errors.Wrapf(ErrKernelCallFailed, "check %s request %d: %v", desc.Kind, id, err)
	}

	resp, err := decodeResponse(out)
	if err != nil {
		if errors.Is(err, ErrKernelCallFailed) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrKernelCallFailed, "check %s request %d: %v", desc.Kind, id, err)
	}

	if resp.RequestID != id {
		// A stale completion from the driver; treat the channel as unhealthy.
		return nil, errors.Wrapf(ErrKernelCallFailed, "check %s: response id %d for request %d", desc.Kind, resp.RequestID, id)
	}

	if resp.TamperDetected {
		log.Warnf("check %s reported tampering on process %d", desc.Kind, pid)
	}
	return resp, nil
}

// Close tears down the underlying transport.
func (i *Interface) Close() error {
	return i.transport.Close()
}
