// Package bluez lists paired Bluetooth devices and opens RFCOMM serial
// links to them through the BlueZ D-Bus API.
package bluez

import (
	"cmp"
	"slices"
	"strings"

	dbus "github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

// SPPUUID is the Serial Port Profile service class every ELM327 Bluetooth
// adapter advertises.
var SPPUUID = uuid.MustParse("00001101-0000-1000-8000-00805f9b34fb")

const (
	bluezService        = "org.bluez"
	profileIface        = "org.bluez.Profile1"
	profileManagerIface = "org.bluez.ProfileManager1"
	deviceIface         = "org.bluez.Device1"
	adapterIface        = "org.bluez.Adapter1"
	objManagerIface     = "org.freedesktop.DBus.ObjectManager"
	propsIface          = "org.freedesktop.DBus.Properties"
)

// Device is a Bluetooth device known to the adapter.
type Device struct {
	Path    string
	Address string
	Name    string
	Alias   string
	Paired  bool
	// SPP is true when the device advertises the serial port profile.
	SPP bool
}

// DisplayName prefers the user alias, then the remote name, then the
// address.
func (d Device) DisplayName() string {
	switch {
	case d.Alias != "":
		return d.Alias
	case d.Name != "":
		return d.Name
	default:
		return d.Address
	}
}

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// pairedDevices filters the object tree down to paired devices, sorted by
// display name and then address.
func pairedDevices(objs managedObjects) []Device {
	var out []Device
	for path, ifaces := range objs {
		dev, ok := deviceFromIfaces(path, ifaces)
		if !ok || !dev.Paired {
			continue
		}
		out = append(out, dev)
	}
	slices.SortFunc(out, func(a, b Device) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName())),
			cmp.Compare(a.Address, b.Address),
		)
	})
	return out
}

// adapters returns the adapter paths and whether each is powered.
func adapters(objs managedObjects) map[dbus.ObjectPath]bool {
	out := make(map[dbus.ObjectPath]bool)
	for path, ifaces := range objs {
		props, ok := ifaces[adapterIface]
		if !ok {
			continue
		}
		powered, _ := variant[bool](props, "Powered")
		out[path] = powered
	}
	return out
}

func deviceFromIfaces(path dbus.ObjectPath, ifaces map[string]map[string]dbus.Variant) (Device, bool) {
	props, ok := ifaces[deviceIface]
	if !ok {
		return Device{}, false
	}
	dev := Device{Path: string(path)}
	dev.Address, _ = variant[string](props, "Address")
	dev.Name, _ = variant[string](props, "Name")
	dev.Alias, _ = variant[string](props, "Alias")
	dev.Paired, _ = variant[bool](props, "Paired")
	uuids, _ := variant[[]string](props, "UUIDs")
	dev.SPP = containsUUID(uuids, SPPUUID)
	if dev.Address == "" {
		dev.Address = macFromPath(path)
	}
	return dev, true
}

func variant[T any](props map[string]dbus.Variant, key string) (T, bool) {
	var zero T
	v, ok := props[key]
	if !ok {
		return zero, false
	}
	t, ok := v.Value().(T)
	return t, ok
}

func containsUUID(list []string, target uuid.UUID) bool {
	for _, s := range list {
		if u, err := uuid.Parse(s); err == nil && u == target {
			return true
		}
	}
	return false
}

// macFromPath recovers the address from a .../dev_XX_XX_XX_XX_XX_XX path.
func macFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ReplaceAll(s[idx+5:], "_", ":")
}
