package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	api "github.com/racksync/racksync/api/v1alpha1"
	"github.com/racksync/racksync/internal/facts"
	"github.com/racksync/racksync/internal/raid"
)

// itemSpec is one desired inventory item. parentKey links physical
// disks to their virtual drive when decomposition is enabled.
type itemSpec struct {
	kind      api.InventoryKind
	name      string
	serial    string
	partID    string
	parentKey string
	custom    map[string]string
}

// key is the identity an item is matched on remotely:
// (device, kind, serial-or-position).
func (s itemSpec) key() string {
	id := s.serial
	if id == "" {
		id = s.name
	}
	return string(s.kind) + "/" + id
}

var componentKinds = map[string]api.InventoryKind{
	"cpu": api.InventoryKindCPU,
	"gpu": api.InventoryKindGPU,
	"ram": api.InventoryKindRAM,
	"psu": api.InventoryKindPSU,
}

// buildInventory derives the desired component items from discovered
// units and RAID controller output. Entry-level RAID parse failures
// are returned for logging; the rest of the model still builds.
func buildInventory(f *facts.HostFacts, expandVD bool) ([]itemSpec, []error) {
	var items []itemSpec
	var errs []error

	for _, c := range f.Components {
		kind, ok := componentKinds[strings.ToLower(c.Kind)]
		if !ok {
			errs = append(errs, errors.Errorf("unknown component kind %q for %q", c.Kind, c.Name))
			continue
		}
		items = append(items, itemSpec{
			kind:   kind,
			name:   firstOf(c.Name, c.Position),
			serial: firstOf(c.Serial, c.Position),
			partID: c.PartID,
		})
	}

	for _, out := range f.RAID {
		ctrl, parseErrs, err := raid.Normalize(out.Format, out.ControllerInfo, out.VirtualDrives, out.PhysicalDisks)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, parseErrs...)
		items = append(items, raidItems(ctrl, f.Mounts, expandVD)...)
	}

	return items, errs
}

// raidItems flattens one controller into inventory items. With
// decomposition enabled each virtual drive becomes a parent item and
// its physical disks children carrying the drive's custom fields.
func raidItems(ctrl *raid.Controller, mounts map[string]string, expandVD bool) []itemSpec {
	items := []itemSpec{{
		kind:   api.InventoryKindRAIDController,
		name:   ctrl.Product,
		serial: ctrl.Serial,
	}}

	for _, vd := range ctrl.Drives {
		custom := map[string]string{
			"vd_array":       vd.Group,
			"vd_consistency": string(vd.State),
			"vd_device":      vd.Device,
			"vd_raid_type":   string(vd.Level),
			"vd_size":        strconv.FormatInt(vd.SizeBytes, 10),
		}
		if mp, ok := mounts[vd.Device]; ok {
			custom["mount_point"] = mp
		}

		var parentKey string
		if expandVD {
			vdItem := itemSpec{
				kind:   api.InventoryKindDisk,
				name:   fmt.Sprintf("vd-%s", vd.ID),
				custom: custom,
			}
			items = append(items, vdItem)
			parentKey = vdItem.key()
		}

		for _, pd := range vd.Disks {
			pdCustom := map[string]string{"pd_identifier": pd.ID}
			for k, v := range custom {
				pdCustom[k] = v
			}
			items = append(items, itemSpec{
				kind:      api.InventoryKindDisk,
				name:      firstOf(pd.Model, pd.ID),
				serial:    pd.Serial,
				parentKey: parentKey,
				custom:    pdCustom,
			})
		}
	}

	for _, pd := range ctrl.Unassigned {
		items = append(items, itemSpec{
			kind:   api.InventoryKindDisk,
			name:   firstOf(pd.Model, pd.ID),
			serial: pd.Serial,
			custom: map[string]string{"pd_identifier": pd.ID},
		})
	}

	return items
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
