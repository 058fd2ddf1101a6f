// Package netutil derives non-overlapping IPv4 address blocks from allocated network ids.
package netutil

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// CIDRSubnet calculates a subnet address given a network prefix, a netmask size
// increase and a subnet number, like Terraform's cidrsubnet function.
// Only IPv4 prefixes are supported.
func CIDRSubnet(prefix string, newbits, netnum int) (string, error) {
	p, err := netip.ParsePrefix(prefix)
	if err != nil {
		return "", fmt.Errorf("invalid CIDR prefix: %w", err)
	}
	if !p.Addr().Is4() {
		return "", fmt.Errorf("only IPv4 prefixes are supported, got %s", prefix)
	}
	p = p.Masked()

	bits := p.Bits() + newbits
	if newbits < 0 || bits > 32 {
		return "", fmt.Errorf("prefix extension of %d bits is invalid for %s", newbits, prefix)
	}
	if netnum < 0 || netnum >= 1<<newbits {
		return "", fmt.Errorf("subnet number %d exceeds max subnets %d", netnum, 1<<newbits)
	}

	base := p.Addr().As4()
	n := binary.BigEndian.Uint32(base[:])
	// #nosec G115 -- bits is within [0, 32] and netnum below 1<<newbits
	n += uint32(netnum) << (32 - bits)

	var out [4]byte
	binary.BigEndian.PutUint32(out[:], n)
	return netip.PrefixFrom(netip.AddrFrom4(out), bits).String(), nil
}

// NetworkBlock returns the /16 block for network id inside base, e.g. id 5 in
// 10.0.0.0/8 yields 10.5.0.0/16.
func NetworkBlock(base string, id int) (string, error) {
	p, err := netip.ParsePrefix(base)
	if err != nil {
		return "", fmt.Errorf("invalid network base %q: %w", base, err)
	}
	if p.Bits() > 16 {
		return "", fmt.Errorf("network base %s is smaller than a /16", base)
	}
	return CIDRSubnet(base, 16-p.Bits(), id)
}
