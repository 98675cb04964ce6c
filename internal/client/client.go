package client

import (
	"context"

	"github.com/google/uuid"

	api "github.com/racksync/racksync/api/v1alpha1"
)

// Inventory is the client interface for the remote inventory system.
// Lookups return (nil, nil) when no record matches; errors are
// reserved for transport and server failures. The server enforces
// uniqueness on MAC (interface-scoped) and serial (site-scoped); the
// engine's diff logic respects these keys rather than bypassing them.
type Inventory interface {
	FindDeviceType(ctx context.Context, manufacturer, model string) (*api.DeviceType, error)
	CreateDeviceType(ctx context.Context, dt api.DeviceType) (*api.DeviceType, error)

	FindDevice(ctx context.Context, manufacturer, model, serial, site string) (*api.Device, error)
	FindDeviceByName(ctx context.Context, name string) (*api.Device, error)
	CreateDevice(ctx context.Context, d api.Device) (*api.Device, error)
	UpdateDevice(ctx context.Context, d api.Device) (*api.Device, error)

	ListInterfaces(ctx context.Context, deviceID uuid.UUID) ([]api.Interface, error)
	GetInterface(ctx context.Context, id uuid.UUID) (*api.Interface, error)
	CreateInterface(ctx context.Context, iface api.Interface) (*api.Interface, error)
	UpdateInterface(ctx context.Context, iface api.Interface) (*api.Interface, error)

	FindIPAddresses(ctx context.Context, address string) ([]api.IPAddress, error)
	CreateIPAddress(ctx context.Context, ip api.IPAddress) (*api.IPAddress, error)
	UpdateIPAddress(ctx context.Context, ip api.IPAddress) (*api.IPAddress, error)

	ListInventory(ctx context.Context, deviceID uuid.UUID) ([]api.InventoryItem, error)
	CreateInventoryItem(ctx context.Context, item api.InventoryItem) (*api.InventoryItem, error)
	UpdateInventoryItem(ctx context.Context, item api.InventoryItem) (*api.InventoryItem, error)

	FindCable(ctx context.Context, aID, bID uuid.UUID) (*api.Cable, error)
	CreateCable(ctx context.Context, c api.Cable) (*api.Cable, error)
}
