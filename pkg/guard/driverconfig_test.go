// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package guard

import (
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentity() DriverIdentity {
	return DriverIdentity{
		DriverName:   "procguard",
		DeviceName:   `\Device\ProcGuard`,
		SymbolicLink: `\??\ProcGuard`,
		DriverPath:   `C:\Windows\System32\drivers\procguard.sys`,
		RegistryPath: `SYSTEM\CurrentControlSet\Services\procguard`,
	}
}

func TestDriverConfigInitOnce(t *testing.T) {
	cfg := NewDriverConfig()

	_, err := cfg.GetDriverPath()
	assert.Equal(t, ErrNotInitialized, err)

	require.NoError(t, cfg.Initialize(testIdentity()))
	assert.Equal(t, ErrAlreadyInitialized, cfg.Initialize(testIdentity()))

	path, err := cfg.GetDriverPath()
	require.NoError(t, err)
	assert.Equal(t, `C:\Windows\System32\drivers\procguard.sys`, path)

	reg, err := cfg.GetRegistryPath()
	require.NoError(t, err)
	assert.Equal(t, `SYSTEM\CurrentControlSet\Services\procguard`, reg)
}

func TestDriverConfigAccessorsBeforeInit(t *testing.T) {
	cfg := NewDriverConfig()

	_, err := cfg.GetDeviceName()
	assert.Equal(t, ErrNotInitialized, err)
	_, err = cfg.GetSymbolicLink()
	assert.Equal(t, ErrNotInitialized, err)
	_, err = cfg.GetDriverName()
	assert.Equal(t, ErrNotInitialized, err)
	_, err = cfg.GetDriverNameUTF16()
	assert.Equal(t, ErrNotInitialized, err)
	_, err = cfg.GetIdentity()
	assert.Equal(t, ErrNotInitialized, err)
}

func TestDriverConfigWideName(t *testing.T) {
	cfg := NewDriverConfig()
	require.NoError(t, cfg.Initialize(testIdentity()))

	wide, err := cfg.GetDriverNameUTF16()
	require.NoError(t, err)
	assert.Equal(t, "procguard", string(utf16.Decode(wide)))

	// The accessor hands out a copy, not the internal slice.
	wide[0] = 'X'
	again, err := cfg.GetDriverNameUTF16()
	require.NoError(t, err)
	assert.Equal(t, "procguard", string(utf16.Decode(again)))
}
