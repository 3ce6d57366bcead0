// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package guard

import "errors"

var (
	// ErrNotInitialized is returned by accessors used before the store was
	// initialized. Recoverable: callers retry later.
	ErrNotInitialized = errors.New("store not initialized")

	// ErrAlreadyInitialized is returned on a second Initialize call. This is
	// an ordering bug in the caller, not a condition to retry.
	ErrAlreadyInitialized = errors.New("store already initialized")

	// ErrAlreadyProtected is returned when a process launch is observed while
	// another process is still protected.
	ErrAlreadyProtected = errors.New("a process is already protected")
)
