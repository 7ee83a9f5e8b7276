// WireGuard-backed instance runtime built on wireguard-go.
package runtime

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"

	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun"
	"golang.zx2c4.com/wireguard/tun/netstack"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/go-i2p/netext/lib/config"
	nxerrors "github.com/go-i2p/netext/lib/errors"
)

// WireGuard runs one overlay instance on a wireguard-go device.
//
// When constructed with a host-bound TUN device it moves packets between
// that device and the overlay. Without one it creates a userspace netstack
// TUN, which is the device-less platform mode.
type WireGuard struct {
	mu sync.Mutex

	cfg    *config.InstanceConfig
	tunDev tun.Device
	dev    *device.Device
	net    *netstack.Net

	state   string
	done    chan struct{}
	monitor sync.Once
}

// Runtime states reported by Status.
const (
	stateCreated = "created"
	stateRunning = "running"
	stateStopped = "stopped"
)

// NewWireGuard creates a runtime for the given configuration. dev may be nil
// for device-less operation.
func NewWireGuard(cfg *config.InstanceConfig, dev tun.Device) (*WireGuard, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil configuration", nxerrors.ErrConfiguration)
	}
	return &WireGuard{
		cfg:    cfg,
		tunDev: dev,
		state:  stateCreated,
		done:   make(chan struct{}),
	}, nil
}

// Start brings up the device and applies the configured peer set.
func (w *WireGuard) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == stateRunning {
		return fmt.Errorf("%w: already running", nxerrors.ErrInvalidState)
	}
	if w.state == stateStopped {
		return fmt.Errorf("%w: runtime is stopped", nxerrors.ErrInvalidState)
	}

	tunDev := w.tunDev
	if tunDev == nil {
		netTUN, netStack, err := netstack.CreateNetTUN(
			[]netip.Addr{w.cfg.TunnelAddr()},
			[]netip.Addr{}, // No DNS
			w.cfg.MTU(),
		)
		if err != nil {
			return fmt.Errorf("%w: creating netstack TUN: %v", nxerrors.ErrRuntimeStart, err)
		}
		tunDev = netTUN
		w.net = netStack
	}

	ipc, err := ipcConfig(w.cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", nxerrors.ErrRuntimeStart, err)
	}

	dev := device.NewDevice(tunDev, conn.NewDefaultBind(), device.NewLogger(device.LogLevelSilent, ""))
	if err := dev.IpcSet(ipc); err != nil {
		dev.Close()
		return fmt.Errorf("%w: configuring device: %v", nxerrors.ErrRuntimeStart, err)
	}
	if err := dev.Up(); err != nil {
		dev.Close()
		return fmt.Errorf("%w: bringing up device: %v", nxerrors.ErrRuntimeStart, err)
	}

	w.dev = dev
	w.tunDev = tunDev
	w.state = stateRunning

	w.monitor.Do(func() {
		go func() {
			<-dev.Wait()
			w.mu.Lock()
			w.state = stateStopped
			w.mu.Unlock()
			close(w.done)
		}()
	})

	log.WithField("tunnel_ip", w.cfg.Network.TunnelIP).
		WithField("peers", len(w.cfg.Peers)).
		Info("overlay runtime started")
	return nil
}

// Stop closes the device and waits for shutdown, bounded by the context.
// Safe to call repeatedly.
func (w *WireGuard) Stop(ctx context.Context) error {
	w.mu.Lock()
	dev := w.dev
	running := w.state == stateRunning
	w.mu.Unlock()

	if !running || dev == nil {
		return nil
	}

	log.Debug("stopping overlay runtime")
	dev.Close()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", nxerrors.ErrRuntimeStop, ctx.Err())
	}
}

// Status reports the runtime's observable attributes. It never blocks on
// network activity.
func (w *WireGuard) Status() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return map[string]string{
		"state":       w.state,
		"tunnel_ip":   w.cfg.Network.TunnelIP,
		"subnet":      w.cfg.Network.Subnet,
		"listen_port": strconv.Itoa(w.cfg.Network.ListenPort),
		"mtu":         strconv.Itoa(w.cfg.MTU()),
		"peer_count":  strconv.Itoa(len(w.cfg.Peers)),
	}
}

// Done is closed when the device shuts down.
func (w *WireGuard) Done() <-chan struct{} {
	return w.done
}

// hexKey encodes a key for the device IPC interface.
func hexKey(k wgtypes.Key) string {
	return hex.EncodeToString(k[:])
}

// ipcConfig renders the configuration in the device's IPC set format.
func ipcConfig(cfg *config.InstanceConfig) (string, error) {
	out := fmt.Sprintf("private_key=%s\n", hexKey(cfg.PrivateKey()))
	if cfg.Network.ListenPort > 0 {
		out += fmt.Sprintf("listen_port=%d\n", cfg.Network.ListenPort)
	}

	for _, peer := range cfg.Peers {
		key, err := wgtypes.ParseKey(peer.PublicKey)
		if err != nil {
			return "", fmt.Errorf("parsing peer key: %w", err)
		}
		out += fmt.Sprintf("public_key=%s\n", hexKey(key))

		if peer.Endpoint != "" {
			addr, err := net.ResolveUDPAddr("udp", peer.Endpoint)
			if err != nil {
				return "", fmt.Errorf("resolving peer endpoint %q: %w", peer.Endpoint, err)
			}
			out += fmt.Sprintf("endpoint=%s\n", addr.String())
		}
		for _, cidr := range peer.AllowedIPs {
			out += fmt.Sprintf("allowed_ip=%s\n", cidr)
		}
		if peer.Keepalive > 0 {
			out += fmt.Sprintf("persistent_keepalive_interval=%d\n", peer.Keepalive)
		}
	}

	return out, nil
}
