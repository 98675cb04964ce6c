package client

import (
	"context"

	"github.com/google/uuid"

	api "github.com/racksync/racksync/api/v1alpha1"
)

var _ Inventory = (*Fake)(nil)

// Fake is an in-memory Inventory used by tests. It counts writes so
// idempotence (a second identical run produces zero writes) can be
// asserted directly.
type Fake struct {
	DeviceTypes map[uuid.UUID]api.DeviceType
	Devices     map[uuid.UUID]api.Device
	Interfaces  map[uuid.UUID]api.Interface
	IPs         map[uuid.UUID]api.IPAddress
	Items       map[uuid.UUID]api.InventoryItem
	Cables      map[uuid.UUID]api.Cable

	Creates int
	Updates int
}

func NewFake() *Fake {
	return &Fake{
		DeviceTypes: map[uuid.UUID]api.DeviceType{},
		Devices:     map[uuid.UUID]api.Device{},
		Interfaces:  map[uuid.UUID]api.Interface{},
		IPs:         map[uuid.UUID]api.IPAddress{},
		Items:       map[uuid.UUID]api.InventoryItem{},
		Cables:      map[uuid.UUID]api.Cable{},
	}
}

// Writes is the total number of mutations issued against the fake.
func (f *Fake) Writes() int { return f.Creates + f.Updates }

// ResetCounters clears the write counters between runs.
func (f *Fake) ResetCounters() {
	f.Creates = 0
	f.Updates = 0
}

func (f *Fake) FindDeviceType(_ context.Context, manufacturer, model string) (*api.DeviceType, error) {
	for _, dt := range f.DeviceTypes {
		if dt.Manufacturer == manufacturer && dt.Model == model {
			dt := dt
			return &dt, nil
		}
	}
	return nil, nil
}

func (f *Fake) CreateDeviceType(_ context.Context, dt api.DeviceType) (*api.DeviceType, error) {
	dt.ID = uuid.New()
	f.DeviceTypes[dt.ID] = dt
	f.Creates++
	return &dt, nil
}

func (f *Fake) FindDevice(_ context.Context, manufacturer, model, serial, site string) (*api.Device, error) {
	for _, d := range f.Devices {
		if d.Manufacturer == manufacturer && d.Model == model && d.Serial == serial {
			if site != "" && d.Site != "" && d.Site != site {
				continue
			}
			d := d
			return &d, nil
		}
	}
	return nil, nil
}

func (f *Fake) FindDeviceByName(_ context.Context, name string) (*api.Device, error) {
	for _, d := range f.Devices {
		if d.Name == name {
			d := d
			return &d, nil
		}
	}
	return nil, nil
}

func (f *Fake) CreateDevice(_ context.Context, d api.Device) (*api.Device, error) {
	d.ID = uuid.New()
	f.Devices[d.ID] = d
	f.Creates++
	return &d, nil
}

func (f *Fake) UpdateDevice(_ context.Context, d api.Device) (*api.Device, error) {
	f.Devices[d.ID] = d
	f.Updates++
	return &d, nil
}

func (f *Fake) ListInterfaces(_ context.Context, deviceID uuid.UUID) ([]api.Interface, error) {
	var out []api.Interface
	for _, iface := range f.Interfaces {
		if iface.DeviceID == deviceID {
			out = append(out, iface)
		}
	}
	return out, nil
}

func (f *Fake) GetInterface(_ context.Context, id uuid.UUID) (*api.Interface, error) {
	iface, ok := f.Interfaces[id]
	if !ok {
		return nil, nil
	}
	return &iface, nil
}

func (f *Fake) CreateInterface(_ context.Context, iface api.Interface) (*api.Interface, error) {
	iface.ID = uuid.New()
	f.Interfaces[iface.ID] = iface
	f.Creates++
	return &iface, nil
}

func (f *Fake) UpdateInterface(_ context.Context, iface api.Interface) (*api.Interface, error) {
	f.Interfaces[iface.ID] = iface
	f.Updates++
	return &iface, nil
}

func (f *Fake) FindIPAddresses(_ context.Context, address string) ([]api.IPAddress, error) {
	var out []api.IPAddress
	for _, ip := range f.IPs {
		if ip.Address == address {
			out = append(out, ip)
		}
	}
	return out, nil
}

func (f *Fake) CreateIPAddress(_ context.Context, ip api.IPAddress) (*api.IPAddress, error) {
	ip.ID = uuid.New()
	f.IPs[ip.ID] = ip
	f.Creates++
	return &ip, nil
}

func (f *Fake) UpdateIPAddress(_ context.Context, ip api.IPAddress) (*api.IPAddress, error) {
	f.IPs[ip.ID] = ip
	f.Updates++
	return &ip, nil
}

func (f *Fake) ListInventory(_ context.Context, deviceID uuid.UUID) ([]api.InventoryItem, error) {
	var out []api.InventoryItem
	for _, item := range f.Items {
		if item.DeviceID == deviceID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *Fake) CreateInventoryItem(_ context.Context, item api.InventoryItem) (*api.InventoryItem, error) {
	item.ID = uuid.New()
	f.Items[item.ID] = item
	f.Creates++
	return &item, nil
}

func (f *Fake) UpdateInventoryItem(_ context.Context, item api.InventoryItem) (*api.InventoryItem, error) {
	f.Items[item.ID] = item
	f.Updates++
	return &item, nil
}

func (f *Fake) FindCable(_ context.Context, aID, bID uuid.UUID) (*api.Cable, error) {
	for _, c := range f.Cables {
		if (c.InterfaceAID == aID && c.InterfaceBID == bID) || (c.InterfaceAID == bID && c.InterfaceBID == aID) {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (f *Fake) CreateCable(_ context.Context, c api.Cable) (*api.Cable, error) {
	c.ID = uuid.New()
	f.Cables[c.ID] = c
	f.Creates++
	return &c, nil
}
