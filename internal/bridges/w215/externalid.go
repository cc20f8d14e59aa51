package w215

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/nerrad567/gray-logic-w215/internal/device"
)

// externalIDPrefix starts every W215 device and feature external ID.
const externalIDPrefix = "w215:"

// ParseExternalID decodes a device external ID of the form "w215:<ip>" or
// "w215:<ip>:<port>" ("w215:[<ipv6>]:<port>" for IPv6 with a port).
// A zero port means the plug's default HTTP port.
func ParseExternalID(externalID string) (netip.AddrPort, error) {
	rest, ok := strings.CutPrefix(externalID, externalIDPrefix)
	if !ok || rest == "" {
		return netip.AddrPort{}, fmt.Errorf("%w: %q", ErrInvalidExternalID, externalID)
	}

	if addr, err := netip.ParseAddr(rest); err == nil {
		return netip.AddrPortFrom(addr, 0), nil
	}
	ap, err := netip.ParseAddrPort(rest)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %q", ErrInvalidExternalID, externalID)
	}
	return ap, nil
}

// Endpoint returns the HNAP URL of a plug.
func Endpoint(addr netip.AddrPort) string {
	if addr.Port() != 0 {
		return "http://" + addr.String() + "/HNAP1"
	}
	host := addr.Addr().String()
	if addr.Addr().Is6() {
		host = "[" + host + "]"
	}
	return "http://" + host + "/HNAP1"
}

// DeviceExternalID returns the external ID of the plug at address, which is
// an IP optionally followed by ":<port>".
func DeviceExternalID(address string) string {
	return externalIDPrefix + address
}

// FeatureExternalID returns the external ID of one feature of a plug.
func FeatureExternalID(deviceExternalID string, typ device.FeatureType) string {
	return deviceExternalID + ":" + string(typ)
}
