// Package natutil defines the capability interfaces for NAT traversal and
// relay discovery collaborators (STUN, TURN, port forwarding, Yggdrasil
// overlay discovery). The Broker depends only on these interfaces; no
// concrete implementation ships here since negotiating with real STUN/TURN
// infrastructure is an external, deployment-specific concern.
package natutil

import "context"

// NatType classifies how a device's NAT maps outbound connections.
type NatType int

const (
	NatUnknown NatType = iota
	NatFullCone
	NatRestrictedCone
	NatPortRestrictedCone
	NatSymmetric
)

// STUNClient discovers a device's public IP and NAT type.
type STUNClient interface {
	GetPublicIPAndNATType(ctx context.Context) (publicIP string, natType NatType, err error)
}

// TURNAllocation is a relayed transport address obtained from a TURN
// server for a device behind a NAT too restrictive for direct traversal.
type TURNAllocation struct {
	RelayedAddress string
	Lifetime       int
}

// TURNClient allocates and refreshes TURN relay addresses.
type TURNClient interface {
	Allocate(ctx context.Context) (TURNAllocation, error)
	Refresh(ctx context.Context, allocation TURNAllocation) (TURNAllocation, error)
}

// PortForwarder attempts to open an inbound port via UPnP/NAT-PMP so a
// device behind a NAT can accept direct connections.
type PortForwarder interface {
	ForwardPort(ctx context.Context, internalPort int) (externalPort int, err error)
	RemoveForwarding(ctx context.Context, externalPort int) error
}

// YggdrasilDiscovery resolves a device's overlay-network address for the
// Yggdrasil mesh fallback relay.
type YggdrasilDiscovery interface {
	ResolveOverlayAddress(ctx context.Context, deviceID string) (overlayAddr string, err error)
}

// UnavailableSTUNClient is the stub used when no real STUN infrastructure
// is configured: every call reports NatUnknown rather than blocking or
// panicking, so capability-detection call sites degrade gracefully.
type UnavailableSTUNClient struct{}

func (UnavailableSTUNClient) GetPublicIPAndNATType(context.Context) (string, NatType, error) {
	return "", NatUnknown, nil
}
