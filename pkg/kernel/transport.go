// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kernel

import "context"

// Transport is the single logical channel to the kernel component. Invoke
// performs one buffered control exchange: in is the request buffer, outSize
// the size of the response buffer the driver fills. Implementations must be
// safe for concurrent use, the channel is multiplexed by request identity.
type Transport interface {
	Invoke(ctx context.Context, code uint32, in []byte, outSize uint32) ([]byte, error)
	Close() error
}
