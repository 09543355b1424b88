package ksx4506

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceClass is the device ID byte of a frame.
type DeviceClass uint8

// Device classes
const (
	ClassLight       DeviceClass = 0x0E
	ClassGasValve    DeviceClass = 0x12
	ClassCurtain     DeviceClass = 0x13
	ClassMeter       DeviceClass = 0x30
	ClassDoorLock    DeviceClass = 0x31
	ClassVentilation DeviceClass = 0x32
	ClassBatchSwitch DeviceClass = 0x33
	ClassThermostat  DeviceClass = 0x36
	ClassPowerGate   DeviceClass = 0x39
)

func (c DeviceClass) String() string {
	switch c {
	case ClassLight:
		return "light"
	case ClassGasValve:
		return "gas_valve"
	case ClassCurtain:
		return "curtain"
	case ClassMeter:
		return "meter"
	case ClassDoorLock:
		return "door_lock"
	case ClassVentilation:
		return "ventilation"
	case ClassBatchSwitch:
		return "batch_switch"
	case ClassThermostat:
		return "thermostat"
	case ClassPowerGate:
		return "power_gate"
	default:
		return fmt.Sprintf("class_%02x", uint8(c))
	}
}

// AddressMode is how a sub ID selects units.
type AddressMode int

const (
	// ModeSingle addresses one stand-alone unit (group nibble 0).
	ModeSingle AddressMode = iota
	// ModeSingleOfGroup addresses one member of a group.
	ModeSingleOfGroup
	// ModeFullGroup addresses every member of one group (index nibble F).
	ModeFullGroup
	// ModeAll addresses every unit of the class (sub ID 0xFF).
	ModeAll
)

func (m AddressMode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeSingleOfGroup:
		return "single_of_group"
	case ModeFullGroup:
		return "full_group"
	case ModeAll:
		return "all"
	default:
		return "unknown"
	}
}

// Address identifies a device on the bus: device class plus sub ID. The sub ID
// high nibble is the group, the low nibble the index within the group.
type Address struct {
	Class DeviceClass
	SubID uint8
}

// NewAddress builds an address from its parts.
func NewAddress(class DeviceClass, group, index uint8) Address {
	return Address{Class: class, SubID: (group&0x0F)<<4 | index&0x0F}
}

// Group returns the group nibble.
func (a Address) Group() uint8 { return a.SubID >> 4 }

// Index returns the index nibble.
func (a Address) Index() uint8 { return a.SubID & 0x0F }

// Mode returns the addressing mode encoded in the sub ID.
func (a Address) Mode() AddressMode {
	switch {
	case a.SubID == 0xFF:
		return ModeAll
	case a.Index() == 0x0F:
		return ModeFullGroup
	case a.Group() == 0:
		return ModeSingle
	default:
		return ModeSingleOfGroup
	}
}

// IsGroup reports whether the address selects more than one unit.
func (a Address) IsGroup() bool {
	m := a.Mode()
	return m == ModeFullGroup || m == ModeAll
}

// GroupAddress returns the full-group address containing a.
func (a Address) GroupAddress() Address {
	return Address{Class: a.Class, SubID: a.SubID | 0x0F}
}

// Child returns the member address at index within a group address.
func (a Address) Child(index uint8) Address {
	return Address{Class: a.Class, SubID: a.SubID&0xF0 | index&0x0F}
}

// Contains reports whether a group address covers b.
func (a Address) Contains(b Address) bool {
	if a.Class != b.Class {
		return false
	}
	switch a.Mode() {
	case ModeAll:
		return true
	case ModeFullGroup:
		return a.Group() == b.Group()
	default:
		return a == b
	}
}

// String renders the address as "0E:11".
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X", uint8(a.Class), a.SubID)
}

// ParseAddress parses the "0E:11" form.
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	class, err := strconv.ParseUint(parts[0], 16, 8)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	sub, err := strconv.ParseUint(parts[1], 16, 8)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return Address{Class: DeviceClass(class), SubID: uint8(sub)}, nil
}
