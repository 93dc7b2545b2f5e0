// Package network tracks whether the device can reach the POS API and tells
// subscribers when that changes.
package network

import (
	"net"
	"strings"
	"time"
)

// Connection types reported in State.Type
const (
	TypeNone     = "none"
	TypeUnknown  = "unknown"
	TypeWiFi     = "wifi"
	TypeEthernet = "ethernet"
	TypeCellular = "cellular"
)

// State is a connectivity snapshot. InternetReachable is nil while unknown.
type State struct {
	Connected         bool      `json:"connected"`
	InternetReachable *bool     `json:"internetReachable"`
	Type              string    `json:"type"`
	CheckedAt         time.Time `json:"checkedAt"`
}

// Reachable returns a pointer for State.InternetReachable
func Reachable(v bool) *bool {
	return &v
}

// IsOnline is true only when connected and reachability is known to be true.
// An unknown reachability counts as offline.
func (s State) IsOnline() bool {
	return s.Connected && s.InternetReachable != nil && *s.InternetReachable
}

// transitioned reports whether going from s to next is a change subscribers care about
func (s State) transitioned(next State) bool {
	return s.IsOnline() != next.IsOnline() || s.Type != next.Type
}

func offlineState(now time.Time) State {
	return State{Connected: false, InternetReachable: Reachable(false), Type: TypeNone, CheckedAt: now}
}

// InterfaceLister enumerates network interfaces; net.Interfaces in production
type InterfaceLister func() ([]net.Interface, error)

// linkState reports whether any non-loopback interface is up and guesses its type
func linkState(list InterfaceLister) (bool, string, error) {
	ifaces, err := list()
	if err != nil {
		return false, TypeUnknown, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		return true, interfaceType(iface.Name), nil
	}
	return false, TypeNone, nil
}

func interfaceType(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.HasPrefix(name, "wl"), strings.HasPrefix(name, "wifi"):
		return TypeWiFi
	case strings.HasPrefix(name, "eth"), strings.HasPrefix(name, "en"):
		return TypeEthernet
	case strings.HasPrefix(name, "ww"), strings.HasPrefix(name, "rmnet"), strings.HasPrefix(name, "pdp_ip"):
		return TypeCellular
	default:
		return TypeUnknown
	}
}
