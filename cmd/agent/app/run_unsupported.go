// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

//go:build !windows

package app

import (
	"github.com/pkg/errors"

	"github.com/DataDog/process-guard/pkg/kernel"
)

func openKernelChannel() (kernel.Transport, kernel.EventSource, error) {
	return nil, nil, errors.New("the kernel driver channel is only available on windows")
}
