package iodev

import (
	"fmt"

	"github.com/james-see/twister2midi/pkg/surfaceerr"
)

// Registry holds one device array per kind, each registered once.
type Registry struct {
	devices [NumKinds][]*Device
}

// Register installs the device array of kind. Every device must be of
// that kind.
func (r *Registry) Register(kind Kind, devices []*Device) error {
	if kind >= NumKinds {
		return fmt.Errorf("register %s: %w", kind, surfaceerr.ErrBadParameter)
	}
	if r.devices[kind] != nil {
		return fmt.Errorf("register %s: %w", kind, surfaceerr.ErrDuplicate)
	}
	for i, d := range devices {
		if d == nil {
			return fmt.Errorf("register %s: device %d: %w", kind, i, surfaceerr.ErrNullReference)
		}
		if d.kind != kind {
			return fmt.Errorf("register %s: device %d is %s: %w", kind, i, d.kind, surfaceerr.ErrBadParameter)
		}
	}
	r.devices[kind] = devices
	return nil
}

// Devices returns the devices of kind.
func (r *Registry) Devices(kind Kind) []*Device {
	if kind >= NumKinds {
		return nil
	}
	return r.devices[kind]
}

// Device returns the device of kind at hardware index.
func (r *Registry) Device(kind Kind, index int) (*Device, error) {
	devs := r.Devices(kind)
	if index < 0 || index >= len(devs) {
		return nil, fmt.Errorf("%s %d: %w", kind, index, surfaceerr.ErrBadParameter)
	}
	return devs[index], nil
}
