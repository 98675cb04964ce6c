package v1alpha1

import "github.com/google/uuid"

// InterfaceKind classifies a network interface record.
type InterfaceKind string

const (
	InterfaceKindPhysical InterfaceKind = "physical"
	InterfaceKindBond     InterfaceKind = "bond"
	InterfaceKindVLAN     InterfaceKind = "vlan"
)

// IPStatus is the lifecycle status of an IP address record.
type IPStatus string

const (
	IPStatusActive     IPStatus = "active"
	IPStatusReserved   IPStatus = "reserved"
	IPStatusDeprecated IPStatus = "deprecated"
)

// IPRole marks special-purpose addresses. Anycast addresses are exempt
// from cross-device uniqueness enforcement.
type IPRole string

const (
	IPRoleNormal  IPRole = ""
	IPRoleAnycast IPRole = "anycast"
)

// InventoryKind classifies a hardware component record.
type InventoryKind string

const (
	InventoryKindCPU            InventoryKind = "cpu"
	InventoryKindGPU            InventoryKind = "gpu"
	InventoryKindRAM            InventoryKind = "ram"
	InventoryKindDisk           InventoryKind = "disk"
	InventoryKindPSU            InventoryKind = "psu"
	InventoryKindRAIDController InventoryKind = "raid-controller"
)

// DeviceType is the blueprint a Device instantiates. Bays lists the
// device-bay labels defined for chassis models; a blade may only bind
// to one of these labels.
type DeviceType struct {
	ID           uuid.UUID `json:"id"`
	Model        string    `json:"model"`
	Manufacturer string    `json:"manufacturer"`
	Bays         []string  `json:"bays,omitempty"`
}

// Device is a physical server, chassis or expansion unit known to the
// remote inventory. Identity key is (manufacturer, model, serial),
// with serial lookups scoped by site.
type Device struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	Manufacturer string            `json:"manufacturer"`
	Model        string            `json:"model"`
	Serial       string            `json:"serial"`
	DeviceTypeID uuid.UUID         `json:"deviceTypeId"`
	Site         string            `json:"site,omitempty"`
	Rack         string            `json:"rack,omitempty"`
	Position     int               `json:"position,omitempty"`
	Face         string            `json:"face,omitempty"`
	Status       string            `json:"status,omitempty"`
	Role         string            `json:"role,omitempty"`
	ParentID     *uuid.UUID        `json:"parentId,omitempty"`
	Bay          string            `json:"bay,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// Interface is a network interface attached to a Device. MAC
// uniqueness is scoped to the interface identity, never global.
type Interface struct {
	ID        uuid.UUID     `json:"id"`
	DeviceID  uuid.UUID     `json:"deviceId"`
	Name      string        `json:"name"`
	Kind      InterfaceKind `json:"kind"`
	MAC       string        `json:"mac,omitempty"`
	SpeedMbps int           `json:"speedMbps,omitempty"`
	Duplex    string        `json:"duplex,omitempty"`
	Enabled   bool          `json:"enabled"`
	LAGID     *uuid.UUID    `json:"lagId,omitempty"`
	VLANs     []int         `json:"vlans,omitempty"`
}

// IPAddress is a CIDR address bound to an Interface.
type IPAddress struct {
	ID          uuid.UUID  `json:"id"`
	Address     string     `json:"address"`
	Role        IPRole     `json:"role,omitempty"`
	Status      IPStatus   `json:"status,omitempty"`
	InterfaceID *uuid.UUID `json:"interfaceId,omitempty"`
}

// Cable pairs two (device, interface) endpoints. Cables are derived
// from neighbor discovery and are always optional.
type Cable struct {
	ID           uuid.UUID `json:"id"`
	InterfaceAID uuid.UUID `json:"interfaceAId"`
	InterfaceBID uuid.UUID `json:"interfaceBId"`
}

// InventoryItem is a hardware component attached to a Device. Disk
// items may reference a parent item (the virtual drive they belong to).
type InventoryItem struct {
	ID           uuid.UUID         `json:"id"`
	DeviceID     uuid.UUID         `json:"deviceId"`
	Kind         InventoryKind     `json:"kind"`
	Name         string            `json:"name"`
	Serial       string            `json:"serial,omitempty"`
	PartID       string            `json:"partId,omitempty"`
	ParentID     *uuid.UUID        `json:"parentId,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}
