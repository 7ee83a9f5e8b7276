// Package config defines the instance configuration document for the netext
// overlay engine. A configuration is a TOML document describing one overlay
// instance: its identity, tunnel addressing, and peer set. Parsing and
// validation are pure with respect to process state; the host boundary layer
// is responsible for error-slot reporting.
package config

import (
	"fmt"
	"net/netip"
	"reflect"

	"github.com/pelletier/go-toml/v2"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	nxerrors "github.com/go-i2p/netext/lib/errors"
	"github.com/go-i2p/netext/lib/validation"
)

// Default configuration values
const (
	DefaultMTU       = 1420
	DefaultKeepalive = 25
)

// InstanceConfig holds the validated configuration for one overlay instance.
// It is immutable once accepted: reconfiguration requires stopping and
// recreating the instance, never in-place mutation.
type InstanceConfig struct {
	Instance InstanceSection `toml:"instance"`
	Network  NetworkSection  `toml:"network"`
	Peers    []PeerSection   `toml:"peer"`
}

// InstanceSection contains basic instance identification settings.
type InstanceSection struct {
	// Name is an optional identifier carried inside the document. The
	// registry name supplied at the boundary takes precedence.
	Name string `toml:"name,omitempty"`
	// Hostname is the name announced to overlay peers
	Hostname string `toml:"hostname,omitempty"`
	// MTU is the tunnel MTU (0 uses DefaultMTU)
	MTU int `toml:"mtu,omitempty"`
}

// NetworkSection contains overlay network identity and addressing.
type NetworkSection struct {
	// PrivateKey is this instance's Curve25519 private key (base64)
	PrivateKey string `toml:"private_key"`
	// ListenPort is the overlay UDP port (0 for random)
	ListenPort int `toml:"listen_port,omitempty"`
	// TunnelIP is this instance's address inside the overlay
	TunnelIP string `toml:"tunnel_ip"`
	// Subnet is the overlay IP range in CIDR notation (e.g., "10.42.0.0/16")
	Subnet string `toml:"subnet"`
}

// PeerSection describes one remote peer of the overlay instance.
type PeerSection struct {
	// PublicKey is the peer's Curve25519 public key (base64)
	PublicKey string `toml:"public_key"`
	// Endpoint is an optional host:port the peer is reachable at
	Endpoint string `toml:"endpoint,omitempty"`
	// AllowedIPs are the prefixes routed to this peer
	AllowedIPs []string `toml:"allowed_ips"`
	// Keepalive is the persistent keepalive interval in seconds (0 disables)
	Keepalive int `toml:"keepalive,omitempty"`
}

// Parse decodes and validates a TOML configuration document.
// Parsing the same document twice yields equal configurations.
func Parse(doc string) (*InstanceConfig, error) {
	if doc == "" {
		return nil, fmt.Errorf("%w: empty document", nxerrors.ErrConfiguration)
	}

	var cfg InstanceConfig
	if err := toml.Unmarshal([]byte(doc), &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing document: %v", nxerrors.ErrConfiguration, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", nxerrors.ErrConfiguration, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero values with defaults.
func (c *InstanceConfig) applyDefaults() {
	if c.Instance.MTU == 0 {
		c.Instance.MTU = DefaultMTU
	}
}

// Validate checks the configuration for errors.
func (c *InstanceConfig) Validate() error {
	if c.Instance.Name != "" {
		if err := validation.InstanceName("instance.name", c.Instance.Name); err != nil {
			return err
		}
	}
	if c.Instance.Hostname != "" {
		if err := validation.MaxLength("instance.hostname", c.Instance.Hostname, validation.MaxHostnameLength); err != nil {
			return err
		}
	}
	if err := validation.MTU("instance.mtu", c.Instance.MTU); err != nil {
		return err
	}

	if err := validation.Required("network.private_key", c.Network.PrivateKey); err != nil {
		return err
	}
	if _, err := wgtypes.ParseKey(c.Network.PrivateKey); err != nil {
		return validation.NewResult("network.private_key", "must be a base64-encoded Curve25519 key", validation.ErrInvalidFormat)
	}
	if err := validation.Port("network.listen_port", c.Network.ListenPort); err != nil {
		return err
	}
	if err := validation.Address("network.tunnel_ip", c.Network.TunnelIP); err != nil {
		return err
	}
	if err := validation.CIDR("network.subnet", c.Network.Subnet); err != nil {
		return err
	}

	subnet, _ := netip.ParsePrefix(c.Network.Subnet)
	addr, _ := netip.ParseAddr(c.Network.TunnelIP)
	if !subnet.Contains(addr) {
		return validation.NewResult("network.tunnel_ip", "must be inside network.subnet", validation.ErrOutOfRange)
	}

	for i, peer := range c.Peers {
		field := fmt.Sprintf("peer[%d]", i)
		if err := validation.Required(field+".public_key", peer.PublicKey); err != nil {
			return err
		}
		if _, err := wgtypes.ParseKey(peer.PublicKey); err != nil {
			return validation.NewResult(field+".public_key", "must be a base64-encoded Curve25519 key", validation.ErrInvalidFormat)
		}
		if peer.Endpoint != "" {
			if err := validation.HostPort(field+".endpoint", peer.Endpoint); err != nil {
				return err
			}
		}
		if len(peer.AllowedIPs) == 0 {
			return validation.NewResult(field+".allowed_ips", "is required", validation.ErrRequired)
		}
		for j, cidr := range peer.AllowedIPs {
			if err := validation.CIDR(fmt.Sprintf("%s.allowed_ips[%d]", field, j), cidr); err != nil {
				return err
			}
		}
		if peer.Keepalive < 0 || peer.Keepalive > 3600 {
			return validation.NewResult(field+".keepalive", "must be between 0 and 3600 seconds", validation.ErrOutOfRange)
		}
	}

	return nil
}

// Equal reports value equality with another configuration. Two documents
// with the same semantic content produce equal configurations.
func (c *InstanceConfig) Equal(other *InstanceConfig) bool {
	if c == nil || other == nil {
		return c == other
	}
	return reflect.DeepEqual(c, other)
}

// PrivateKey returns the parsed overlay private key.
// Only valid after a successful Validate.
func (c *InstanceConfig) PrivateKey() wgtypes.Key {
	key, _ := wgtypes.ParseKey(c.Network.PrivateKey)
	return key
}

// TunnelAddr returns the parsed tunnel IP address.
// Only valid after a successful Validate.
func (c *InstanceConfig) TunnelAddr() netip.Addr {
	addr, _ := netip.ParseAddr(c.Network.TunnelIP)
	return addr
}

// SubnetPrefix returns the parsed overlay subnet.
// Only valid after a successful Validate.
func (c *InstanceConfig) SubnetPrefix() netip.Prefix {
	prefix, _ := netip.ParsePrefix(c.Network.Subnet)
	return prefix
}

// MTU returns the effective tunnel MTU.
func (c *InstanceConfig) MTU() int {
	if c.Instance.MTU == 0 {
		return DefaultMTU
	}
	return c.Instance.MTU
}
