// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package kernel is the boundary the usermode agent uses to invoke the fixed
// catalog of kernel-side integrity checks and to receive asynchronous driver
// notifications. The transport underneath is opaque: a device channel on
// Windows, an in-memory fake everywhere else.
package kernel

import (
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// CheckKind identifies one kernel-side check in the fixed catalog. The set is
// closed: adding a kind means adding a descriptor, a dispatch function in the
// driver, and bumping checkKindCount, which the compiler then enforces across
// the handler table.
type CheckKind int

const (
	// CheckProcessModules verifies the protected process's loaded modules.
	CheckProcessModules CheckKind = iota
	// CheckProcessThreads scans for threads attached to the protected process.
	CheckProcessThreads
	// CheckProcessMemory validates the protected process's executable regions.
	CheckProcessMemory
	// CheckHandleTable audits open handles to the protected process. Its
	// timer is jittered so the audit cannot be anticipated.
	CheckHandleTable
	// CheckSystemModules verifies the in-memory image of system modules.
	CheckSystemModules
	// CheckUnlinkedProcesses scans for processes unlinked from the process list.
	CheckUnlinkedProcesses
	// CheckDriverObjects validates driver object dispatch routines.
	CheckDriverObjects
	// CheckNmiStackWalk stack-walks all cores from an NMI callback.
	CheckNmiStackWalk
	// CheckDpcStackWalk stack-walks all cores from a DPC.
	CheckDpcStackWalk
	// CheckIdtIntegrity validates the interrupt descriptor tables.
	CheckIdtIntegrity
	// CheckPciDevices enumerates PCI devices and reads their config space.
	CheckPciDevices

	checkKindCount
)

// CheckKindCount is the size of the catalog.
const CheckKindCount = int(checkKindCount)

var checkKindNames = [checkKindCount]string{
	CheckProcessModules:    "process_modules",
	CheckProcessThreads:    "process_threads",
	CheckProcessMemory:     "process_memory",
	CheckHandleTable:       "handle_table",
	CheckSystemModules:     "system_modules",
	CheckUnlinkedProcesses: "unlinked_processes",
	CheckDriverObjects:     "driver_objects",
	CheckNmiStackWalk:      "nmi_stackwalk",
	CheckDpcStackWalk:      "dpc_stackwalk",
	CheckIdtIntegrity:      "idt_integrity",
	CheckPciDevices:        "pci_devices",
}

func (k CheckKind) String() string {
	if k < 0 || k >= checkKindCount {
		return "unknown"
	}
	return checkKindNames[k]
}

// IOCTL control code layout, METHOD_BUFFERED / FILE_ANY_ACCESS.
const (
	deviceTypeProcGuard uint32 = 0x8000
	methodBuffered      uint32 = 0
	fileAnyAccess       uint32 = 0
)

func ctlCode(function uint32) uint32 {
	return (deviceTypeProcGuard << 16) | (fileAnyAccess << 14) | (function << 2) | methodBuffered
}

// Descriptor describes one catalog entry: its identity on the wire, the size
// of the buffer the driver fills, how long we wait for it, and how often the
// dispatcher schedules it.
type Descriptor struct {
	Kind         CheckKind
	Code         uint32
	ResponseSize uint32
	Timeout      time.Duration
	Interval     time.Duration
	Jitter       bool
}

// defaultCatalog is the authoritative catalog. Indexed by CheckKind; the
// array length ties it to the enum.
var defaultCatalog = [checkKindCount]Descriptor{
	CheckProcessModules:    {Kind: CheckProcessModules, Code: ctlCode(0x800), ResponseSize: 4096, Timeout: 10 * time.Second, Interval: 30 * time.Second},
	CheckProcessThreads:    {Kind: CheckProcessThreads, Code: ctlCode(0x801), ResponseSize: 1024, Timeout: 10 * time.Second, Interval: 20 * time.Second},
	CheckProcessMemory:     {Kind: CheckProcessMemory, Code: ctlCode(0x802), ResponseSize: 8192, Timeout: 20 * time.Second, Interval: 60 * time.Second},
	CheckHandleTable:       {Kind: CheckHandleTable, Code: ctlCode(0x803), ResponseSize: 2048, Timeout: 10 * time.Second, Interval: 30 * time.Second, Jitter: true},
	CheckSystemModules:     {Kind: CheckSystemModules, Code: ctlCode(0x804), ResponseSize: 16384, Timeout: 30 * time.Second, Interval: 120 * time.Second},
	CheckUnlinkedProcesses: {Kind: CheckUnlinkedProcesses, Code: ctlCode(0x805), ResponseSize: 1024, Timeout: 10 * time.Second, Interval: 45 * time.Second},
	CheckDriverObjects:     {Kind: CheckDriverObjects, Code: ctlCode(0x806), ResponseSize: 4096, Timeout: 15 * time.Second, Interval: 90 * time.Second},
	CheckNmiStackWalk:      {Kind: CheckNmiStackWalk, Code: ctlCode(0x807), ResponseSize: 4096, Timeout: 15 * time.Second, Interval: 60 * time.Second},
	CheckDpcStackWalk:      {Kind: CheckDpcStackWalk, Code: ctlCode(0x808), ResponseSize: 4096, Timeout: 15 * time.Second, Interval: 60 * time.Second},
	CheckIdtIntegrity:      {Kind: CheckIdtIntegrity, Code: ctlCode(0x809), ResponseSize: 512, Timeout: 10 * time.Second, Interval: 120 * time.Second},
	CheckPciDevices:        {Kind: CheckPciDevices, Code: ctlCode(0x80a), ResponseSize: 8192, Timeout: 30 * time.Second, Interval: 300 * time.Second},
}

// Catalog returns a copy of the check catalog. The catalog itself is
// immutable for the process's lifetime; overrides are applied to the copy.
func Catalog() []Descriptor {
	out := make([]Descriptor, checkKindCount)
	copy(out, defaultCatalog[:])
	return out
}

// Describe returns the descriptor for a single kind.
func Describe(kind CheckKind) (Descriptor, error) {
	if kind < 0 || kind >= checkKindCount {
		return Descriptor{}, errors.Errorf("unknown check kind %d", kind)
	}
	return defaultCatalog[kind], nil
}

type checkOverride struct {
	IntervalSecs int `yaml:"interval_secs"`
	TimeoutSecs  int `yaml:"timeout_secs"`
}

// ApplyOverrides patches per-check intervals and timeouts from a yaml
// document keyed by check name. Unknown names are rejected so a typo in the
// file doesn't silently leave a check on its default cadence.
func ApplyOverrides(catalog []Descriptor, data []byte) error {
	overrides := map[string]checkOverride{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return errors.Wrap(err, "invalid checks config")
	}

	byName := map[string]int{}
	for i, desc := range catalog {
		byName[desc.Kind.String()] = i
	}

	for name, o := range overrides {
		idx, ok := byName[name]
		if !ok {
			return errors.Errorf("unknown check %q in checks config", name)
		}
		if o.IntervalSecs > 0 {
			catalog[idx].Interval = time.Duration(o.IntervalSecs) * time.Second
		}
		if o.TimeoutSecs > 0 {
			catalog[idx].Timeout = time.Duration(o.TimeoutSecs) * time.Second
		}
	}
	return nil
}
