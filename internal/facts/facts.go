package facts

import (
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// DMI holds the identity facts probed from SMBIOS/DMI tables. Probing
// itself happens outside the engine; these values arrive as raw
// strings and may be empty on broken firmware.
type DMI struct {
	Manufacturer string `json:"manufacturer"`
	ProductName  string `json:"productName"`
	Serial       string `json:"serial"`

	// Enclosure facts, only meaningful on blade hardware.
	ChassisManufacturer string `json:"chassisManufacturer,omitempty"`
	ChassisModel        string `json:"chassisModel,omitempty"`
	ChassisSerial       string `json:"chassisSerial,omitempty"`
	// ChassisLocation is the raw slot locator string, e.g. "Slot 04"
	// on Dell or "Server Bay 12" on HPE.
	ChassisLocation string `json:"chassisLocation,omitempty"`
	// BaseboardLocator identifies the node board on multi-node
	// (Supermicro Twin) systems.
	BaseboardLocator string `json:"baseboardLocator,omitempty"`
}

// IPAssignment is one address observed on an interface. Anycast marks
// addresses that legitimately appear on several hosts.
type IPAssignment struct {
	Address string `json:"address"`
	Anycast bool   `json:"anycast,omitempty"`
}

// NIC is one local network interface as observed by the host.
type NIC struct {
	Name      string         `json:"name"`
	MAC       string         `json:"mac,omitempty"`
	SpeedMbps int            `json:"speedMbps,omitempty"`
	Duplex    string         `json:"duplex,omitempty"`
	Up        bool           `json:"up"`
	IPs       []IPAssignment `json:"ips,omitempty"`

	// BondMaster is set on member interfaces and names the owning bond.
	BondMaster string `json:"bondMaster,omitempty"`
	// Bond marks the interface as a bond master itself.
	Bond bool `json:"bond,omitempty"`
	// VLANParent/VLANTag are set on tagged subinterfaces (eth0.42).
	VLANParent string `json:"vlanParent,omitempty"`
	VLANTag    int    `json:"vlanTag,omitempty"`
}

// Neighbor is one LLDP neighbor record for a local port.
type Neighbor struct {
	LocalInterface  string `json:"localInterface"`
	RemoteName      string `json:"remoteName"`
	RemoteInterface string `json:"remoteInterface"`
}

// Component is one discovered hardware unit (CPU, GPU, RAM stick, PSU).
type Component struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Serial   string `json:"serial,omitempty"`
	PartID   string `json:"partId,omitempty"`
	Position string `json:"position,omitempty"`
}

// RAIDOutput carries the raw text captured from one RAID controller
// tool invocation. Format selects the normalizer variant.
type RAIDOutput struct {
	Format         string `json:"format"`
	ControllerInfo string `json:"controllerInfo,omitempty"`
	VirtualDrives  string `json:"virtualDrives,omitempty"`
	PhysicalDisks  string `json:"physicalDisks,omitempty"`
}

// Expansion describes expansion hardware (GPU/storage blade) that may
// be registered as a separate child device.
type Expansion struct {
	Model  string `json:"model"`
	Serial string `json:"serial"`
	Bay    string `json:"bay"`
}

// HostFacts is the full fact set for one host, gathered before any
// remote mutation begins.
type HostFacts struct {
	Hostname   string            `json:"hostname"`
	DMI        DMI               `json:"dmi"`
	NICs       []NIC             `json:"nics,omitempty"`
	Neighbors  []Neighbor        `json:"neighbors,omitempty"`
	Components []Component       `json:"components,omitempty"`
	RAID       []RAIDOutput      `json:"raid,omitempty"`
	Mounts     map[string]string `json:"mounts,omitempty"`
	Expansion  *Expansion        `json:"expansion,omitempty"`
}

// Load reads a facts document from disk. Used for offline runs and
// tests; live runs receive HostFacts from the probing layer directly.
func Load(path string) (*HostFacts, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading facts file")
	}
	var f HostFacts
	if err := yaml.Unmarshal(contents, &f); err != nil {
		return nil, errors.Wrap(err, "unmarshaling facts file")
	}
	return &f, nil
}
