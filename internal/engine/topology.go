package engine

import (
	"context"

	"github.com/pkg/errors"
	"github.com/thoas/go-funk"

	api "github.com/racksync/racksync/api/v1alpha1"
	"github.com/racksync/racksync/internal/facts"
	"github.com/racksync/racksync/internal/vendor"
)

// topologyState tracks the resolution steps for one host.
type topologyState string

const (
	stateStandalone    topologyState = "Standalone"
	stateChassisLookup topologyState = "ChassisLookup"
	stateBladeBind     topologyState = "BladeBind"
	stateBound         topologyState = "Bound"
)

// topologyPlan is the terminal result of topology resolution: the host
// device spec plus, for blades, the chassis it binds to. Device IDs
// are filled in during apply.
type topologyPlan struct {
	host        api.Device
	hostType    api.DeviceType
	chassis     *api.Device
	chassisType *api.DeviceType
	expansion   *api.Device
}

// resolveTopology runs the per-host state machine. It only reads from
// the remote system; a TopologyError here guarantees nothing was
// written for the host.
func (e *Engine) resolveTopology(ctx context.Context, dmi facts.DMI, profile vendor.Profile, f *facts.HostFacts, placement map[string]string) (*topologyPlan, error) {
	plan := &topologyPlan{}
	state := stateStandalone
	if profile.IsBlade(dmi) {
		state = stateChassisLookup
	}

	host := api.Device{
		Name:         f.Hostname,
		Manufacturer: dmi.Manufacturer,
		Model:        dmi.ProductName,
		Serial:       dmi.Serial,
		Status:       e.cfg.Status,
		Role:         e.cfg.DeviceRole,
		Site:         placementOr(placement, "site", e.cfg.Site),
		Rack:         placement["rack"],
		Tags:         []string{syncTag},
	}
	if host.Serial == "" {
		return nil, errors.Errorf("device %q: serial is empty after override resolution, identity key incomplete", host.Name)
	}

	if state == stateChassisLookup {
		chassisType, err := e.client.FindDeviceType(ctx, dmi.ChassisManufacturer, dmi.ChassisModel)
		if err != nil {
			return nil, err
		}
		if chassisType == nil {
			return nil, errors.Errorf("device %q: chassis device type (%s %s) not defined remotely",
				host.Name, dmi.ChassisManufacturer, dmi.ChassisModel)
		}

		slot, err := profile.BladeSlot(dmi)
		if err != nil {
			return nil, errors.Wrapf(err, "device %q: resolving blade slot", host.Name)
		}

		state = stateBladeBind
		if !funk.ContainsString(chassisType.Bays, slot) {
			return nil, &TopologyError{Device: host.Name, Slot: slot, Bays: chassisType.Bays}
		}

		plan.chassisType = chassisType
		plan.chassis = &api.Device{
			Name:         chassisName(dmi),
			Manufacturer: dmi.ChassisManufacturer,
			Model:        dmi.ChassisModel,
			Serial:       dmi.ChassisSerial,
			DeviceTypeID: chassisType.ID,
			Status:       e.cfg.Status,
			Role:         "chassis",
			Site:         host.Site,
			Rack:         host.Rack,
			Tags:         []string{syncTag},
		}
		host.Bay = slot
	}

	if e.cfg.ExpansionAsDevice && f.Expansion != nil {
		if plan.chassisType != nil && !funk.ContainsString(plan.chassisType.Bays, f.Expansion.Bay) {
			return nil, &TopologyError{Device: host.Name + "-expansion", Slot: f.Expansion.Bay, Bays: plan.chassisType.Bays}
		}
		plan.expansion = &api.Device{
			Name:         host.Name + "-expansion",
			Manufacturer: dmi.Manufacturer,
			Model:        f.Expansion.Model,
			Serial:       f.Expansion.Serial,
			Status:       e.cfg.Status,
			Role:         "expansion",
			Site:         host.Site,
			Rack:         host.Rack,
			Bay:          f.Expansion.Bay,
			Tags:         []string{syncTag},
		}
	}

	state = stateBound
	e.log.Debugf("topology for %q: %s", host.Name, state)

	plan.host = host
	plan.hostType = api.DeviceType{Manufacturer: dmi.Manufacturer, Model: dmi.ProductName}
	return plan, nil
}

// chassisName derives a stable chassis device name from the enclosure
// serial so every blade of the same enclosure resolves the same record.
func chassisName(dmi facts.DMI) string {
	if dmi.ChassisSerial != "" {
		return "chassis-" + dmi.ChassisSerial
	}
	return "chassis-unknown"
}

func placementOr(placement map[string]string, key, fallback string) string {
	if v, ok := placement[key]; ok && v != "" {
		return v
	}
	return fallback
}
