// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kernel

// PCI configuration space offsets the pci_devices check reads. The check body
// runs kernel-side; usermode only carries the capability surface and the
// offsets used to interpret returned descriptor bytes.
const (
	PciVendorIDOffset        = 0x00
	PciDeviceIDOffset        = 0x02
	PciClassCodeOffset       = 0x08
	PciSubsystemVendorOffset = 0x2C
	PciSubsystemIDOffset     = 0x2E
)

// DeviceQuery is the opaque bus-enumeration capability used by the
// pci_devices check: read length bytes at offset from the configuration
// space of the device identified by handle. Failures surface as
// ErrInsufficientResources or a status propagated from the underlying
// transport.
type DeviceQuery interface {
	Query(deviceHandle uint64, offset uint32, length uint32) ([]byte, error)
}
