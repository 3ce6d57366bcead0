// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package guard holds the agent's authoritative protection state: the
// init-once driver identity and the mutable record of the process currently
// under protection. Every access to either store goes through the store's
// single mutex, mirroring the guarded-mutex discipline the kernel component
// uses for the same structures.
package guard

import (
	"sync"
	"unicode/utf16"
)

// DriverIdentity is the copy-out snapshot of the driver identity store.
type DriverIdentity struct {
	DriverName   string
	DeviceName   string
	SymbolicLink string
	DriverPath   string
	RegistryPath string
}

// DriverConfig is the init-once driver identity store. All fields are set
// exactly once by Initialize; reads before that fail with ErrNotInitialized.
type DriverConfig struct {
	m           sync.Mutex
	initialised bool

	driverName  string
	driverNameW []uint16 // UTF-16 form, handed to the device transport
	identity    DriverIdentity
}

// NewDriverConfig returns an empty, uninitialized driver identity store.
func NewDriverConfig() *DriverConfig {
	return &DriverConfig{}
}

// Initialize sets the driver identity. It may be called exactly once per
// store lifetime and fails with ErrAlreadyInitialized afterwards.
func (c *DriverConfig) Initialize(identity DriverIdentity) error {
	c.m.Lock()
	defer c.m.Unlock()

	if c.initialised {
		return ErrAlreadyInitialized
	}

	c.driverName = identity.DriverName
	c.driverNameW = utf16.Encode([]rune(identity.DriverName))
	c.identity = identity
	c.initialised = true
	return nil
}

// GetDriverPath returns the on-disk driver image path.
func (c *DriverConfig) GetDriverPath() (string, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if !c.initialised {
		return "", ErrNotInitialized
	}
	return c.identity.DriverPath, nil
}

// GetRegistryPath returns the registry configuration path.
func (c *DriverConfig) GetRegistryPath() (string, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if !c.initialised {
		return "", ErrNotInitialized
	}
	return c.identity.RegistryPath, nil
}

// GetDeviceName returns the kernel device name.
func (c *DriverConfig) GetDeviceName() (string, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if !c.initialised {
		return "", ErrNotInitialized
	}
	return c.identity.DeviceName, nil
}

// GetSymbolicLink returns the device's externally visible symbolic link.
func (c *DriverConfig) GetSymbolicLink() (string, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if !c.initialised {
		return "", ErrNotInitialized
	}
	return c.identity.SymbolicLink, nil
}

// GetDriverName returns the narrow form of the driver name.
func (c *DriverConfig) GetDriverName() (string, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if !c.initialised {
		return "", ErrNotInitialized
	}
	return c.driverName, nil
}

// GetDriverNameUTF16 returns a copy of the wide form of the driver name. The
// copy is taken under the lock so a variable-length string can never tear.
func (c *DriverConfig) GetDriverNameUTF16() ([]uint16, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if !c.initialised {
		return nil, ErrNotInitialized
	}
	out := make([]uint16, len(c.driverNameW))
	copy(out, c.driverNameW)
	return out, nil
}

// GetIdentity returns a full snapshot of the identity store.
func (c *DriverConfig) GetIdentity() (DriverIdentity, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if !c.initialised {
		return DriverIdentity{}, ErrNotInitialized
	}
	return c.identity, nil
}
