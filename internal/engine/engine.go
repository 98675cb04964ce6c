package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	api "github.com/racksync/racksync/api/v1alpha1"
	"github.com/racksync/racksync/internal/client"
	"github.com/racksync/racksync/internal/config"
	"github.com/racksync/racksync/internal/facts"
	"github.com/racksync/racksync/internal/statecache"
	"github.com/racksync/racksync/internal/vendor"
	"github.com/racksync/racksync/pkg/metrics"
)

const (
	// syncTag marks records owned by this engine.
	syncTag = "racksync"
	// staleTag flags previously synced items no longer observed.
	// Flagged items are never auto-deleted.
	staleTag = "stale"
)

// Operation is the reconciliation outcome for one entity.
type Operation string

const (
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpNoop     Operation = "noop"
	OpSkip     Operation = "skip"
	OpConflict Operation = "conflict"
)

// ReportEntry is one reconciled entity and what happened to it.
type ReportEntry struct {
	Entity string    `json:"entity"`
	Key    string    `json:"key"`
	Op     Operation `json:"op"`
	Detail string    `json:"detail,omitempty"`
}

// Report summarizes one reconciliation run.
type Report struct {
	Host      string        `json:"host"`
	DryRun    bool          `json:"dryRun,omitempty"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Skipped   int           `json:"skipped"`
	Conflicts int           `json:"conflicts"`
	Stale     []string      `json:"stale,omitempty"`
	Entries   []ReportEntry `json:"entries"`
}

func (r *Report) add(entity, key string, op Operation, detail string) {
	r.Entries = append(r.Entries, ReportEntry{Entity: entity, Key: key, Op: op, Detail: detail})
	switch op {
	case OpCreate:
		r.Created++
		metrics.IncreaseRemoteWrite(entity, string(op))
	case OpUpdate:
		r.Updated++
		metrics.IncreaseRemoteWrite(entity, string(op))
	case OpNoop:
		r.Unchanged++
	case OpSkip:
		r.Skipped++
	case OpConflict:
		r.Conflicts++
		metrics.IncreaseConflict(entity)
	}
}

// Engine reconciles one host's facts against the remote inventory.
// A run is single-threaded: the full desired state is built in memory
// before the first remote mutation, and mutations follow a fixed
// dependency order (chassis, device, interfaces, IPs, inventory,
// cables) so later creates can reference earlier identifiers.
type Engine struct {
	cfg       *config.Config
	client    client.Inventory
	cache     *statecache.Cache
	registry  *facts.Registry
	overrides config.Overrides
	dryRun    bool
	log       *zap.SugaredLogger
}

func New(cfg *config.Config, inv client.Inventory, cache *statecache.Cache, registry *facts.Registry, overrides config.Overrides, dryRun bool) *Engine {
	return &Engine{
		cfg:       cfg,
		client:    inv,
		cache:     cache,
		registry:  registry,
		overrides: overrides,
		dryRun:    dryRun,
		log:       zap.S().Named("engine"),
	}
}

// Run executes one reconciliation pass. Repeated runs with identical
// facts converge: the second run issues zero remote writes.
func (e *Engine) Run(ctx context.Context, f *facts.HostFacts) (*Report, error) {
	report := &Report{Host: f.Hostname, DryRun: e.dryRun}

	dmi := e.overrides.Apply(f.DMI)
	profile := vendor.Classify(dmi.Manufacturer)
	e.log.Infof("host %q classified as %s (manufacturer %q)", f.Hostname, profile.Name(), dmi.Manufacturer)

	placement, err := e.registry.ResolveLocation(ctx, e.cfg.LocationFields)
	if err != nil {
		return nil, err
	}

	plan, err := e.resolveTopology(ctx, dmi, profile, f, placement)
	if err != nil {
		return nil, err
	}

	ifaces, ips, cables := buildNetwork(f.NICs, f.Neighbors)
	items, buildErrs := buildInventory(f, e.cfg.ExpandVirtualDrives)
	for _, berr := range buildErrs {
		e.log.Warnf("inventory entry skipped: %v", berr)
		metrics.IncreaseParseError()
	}

	// Conflict checks are reads and belong to the build phase: a
	// conflicted address is excluded before any write happens.
	remoteHost, err := e.client.FindDevice(ctx, plan.host.Manufacturer, plan.host.Model, plan.host.Serial, plan.host.Site)
	if err != nil {
		return nil, err
	}
	conflicted := map[string]string{}
	for _, ip := range ips {
		if err := e.checkIPConflict(ctx, ip, remoteHost); err != nil {
			var cerr *ConflictError
			if errors.As(err, &cerr) {
				conflicted[ip.address] = cerr.Reason
				continue
			}
			return nil, err
		}
	}

	// Apply phase. Chassis first so the blade can reference it.
	if plan.chassis != nil {
		chassis, err := e.ensureDevice(ctx, *plan.chassis, plan.chassisType, report)
		if err != nil {
			return nil, err
		}
		plan.host.ParentID = &chassis.ID
	}

	hostType, err := e.ensureDeviceType(ctx, plan.hostType)
	if err != nil {
		return nil, err
	}
	plan.host.DeviceTypeID = hostType.ID
	host, err := e.ensureDevice(ctx, plan.host, hostType, report)
	if err != nil {
		return nil, err
	}

	if plan.expansion != nil {
		expansionType, err := e.ensureDeviceType(ctx, api.DeviceType{
			Manufacturer: plan.expansion.Manufacturer,
			Model:        plan.expansion.Model,
		})
		if err != nil {
			return nil, err
		}
		plan.expansion.DeviceTypeID = expansionType.ID
		plan.expansion.ParentID = plan.host.ParentID
		if _, err := e.ensureDevice(ctx, *plan.expansion, expansionType, report); err != nil {
			return nil, err
		}
	}

	ifaceIDs, err := e.reconcileInterfaces(ctx, host, ifaces, report)
	if err != nil {
		return nil, err
	}

	if err := e.reconcileIPs(ctx, host, ips, ifaceIDs, conflicted, report); err != nil {
		return nil, err
	}

	if err := e.reconcileInventory(ctx, host, items, report); err != nil {
		return nil, err
	}

	if err := e.reconcileCables(ctx, ifaceIDs, cables, report); err != nil {
		return nil, err
	}

	return report, nil
}

func (e *Engine) ensureDeviceType(ctx context.Context, desired api.DeviceType) (*api.DeviceType, error) {
	remote, err := e.client.FindDeviceType(ctx, desired.Manufacturer, desired.Model)
	if err != nil {
		return nil, err
	}
	if remote != nil {
		return remote, nil
	}
	if e.dryRun {
		return &api.DeviceType{Manufacturer: desired.Manufacturer, Model: desired.Model}, nil
	}
	return e.client.CreateDeviceType(ctx, desired)
}

// ensureDevice creates or updates one device by its identity key.
// Devices are never deleted by the engine.
func (e *Engine) ensureDevice(ctx context.Context, desired api.Device, dt *api.DeviceType, report *Report) (*api.Device, error) {
	remote, err := e.client.FindDevice(ctx, desired.Manufacturer, desired.Model, desired.Serial, desired.Site)
	if err != nil {
		return nil, err
	}

	if remote == nil {
		if dt != nil {
			desired.DeviceTypeID = dt.ID
		}
		if e.dryRun {
			report.add("Device", desired.Name, OpCreate, "dry-run")
			desired.ID = uuid.New()
			return &desired, nil
		}
		created, err := e.client.CreateDevice(ctx, desired)
		if err != nil {
			return nil, err
		}
		report.add("Device", desired.Name, OpCreate, "")
		return created, nil
	}

	merged, changed := mergeDevice(*remote, desired)
	if !changed {
		report.add("Device", desired.Name, OpNoop, "")
		return remote, nil
	}
	if e.dryRun {
		report.add("Device", desired.Name, OpUpdate, "dry-run")
		return &merged, nil
	}
	updated, err := e.client.UpdateDevice(ctx, merged)
	if err != nil {
		return nil, err
	}
	report.add("Device", desired.Name, OpUpdate, "")
	return updated, nil
}

// mergeDevice overlays the desired fields onto the remote record.
// Fields the engine does not own (empty in desired) are preserved.
func mergeDevice(remote, desired api.Device) (api.Device, bool) {
	changed := false
	setStr := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	setStr(&remote.Name, desired.Name)
	setStr(&remote.Site, desired.Site)
	setStr(&remote.Rack, desired.Rack)
	setStr(&remote.Status, desired.Status)
	setStr(&remote.Role, desired.Role)
	setStr(&remote.Bay, desired.Bay)
	setStr(&remote.Face, desired.Face)
	if desired.Position != 0 && remote.Position != desired.Position {
		remote.Position = desired.Position
		changed = true
	}
	if desired.ParentID != nil && (remote.ParentID == nil || *remote.ParentID != *desired.ParentID) {
		remote.ParentID = desired.ParentID
		changed = true
	}
	for _, tag := range desired.Tags {
		if !funk.ContainsString(remote.Tags, tag) {
			remote.Tags = append(remote.Tags, tag)
			changed = true
		}
	}
	for k, v := range desired.CustomFields {
		if remote.CustomFields[k] != v {
			if remote.CustomFields == nil {
				remote.CustomFields = map[string]string{}
			}
			remote.CustomFields[k] = v
			changed = true
		}
	}
	return remote, changed
}

// reconcileInterfaces applies the interface specs in dependency order
// (bonds before members) and returns the remote interface IDs by name.
// Interfaces are matched by (device, name); MAC lookups are scoped to
// that identity, never global — cross-device MAC uniqueness is
// explicitly unsupported.
func (e *Engine) reconcileInterfaces(ctx context.Context, host *api.Device, specs []ifaceSpec, report *Report) (map[string]uuid.UUID, error) {
	remotes, err := e.client.ListInterfaces(ctx, host.ID)
	if err != nil {
		return nil, err
	}
	byName := map[string]api.Interface{}
	for _, r := range remotes {
		byName[r.Name] = r
	}

	ids := map[string]uuid.UUID{}
	for _, spec := range specs {
		desired := api.Interface{
			DeviceID:  host.ID,
			Name:      spec.name,
			Kind:      spec.kind,
			MAC:       spec.mac,
			SpeedMbps: spec.speedMbps,
			Duplex:    spec.duplex,
			Enabled:   spec.enabled,
			VLANs:     spec.vlans,
		}
		if spec.lagName != "" {
			if lagID, ok := ids[spec.lagName]; ok {
				desired.LAGID = &lagID
			}
		}

		remote, exists := byName[spec.name]
		if !exists {
			if e.dryRun {
				report.add("Interface", spec.name, OpCreate, "dry-run")
				ids[spec.name] = uuid.New()
				continue
			}
			created, err := e.client.CreateInterface(ctx, desired)
			if err != nil {
				return nil, err
			}
			report.add("Interface", spec.name, OpCreate, "")
			ids[spec.name] = created.ID
			continue
		}

		ids[spec.name] = remote.ID
		merged, changed := mergeInterface(remote, desired)
		if !changed {
			report.add("Interface", spec.name, OpNoop, "")
			continue
		}
		if e.dryRun {
			report.add("Interface", spec.name, OpUpdate, "dry-run")
			continue
		}
		if _, err := e.client.UpdateInterface(ctx, merged); err != nil {
			return nil, err
		}
		report.add("Interface", spec.name, OpUpdate, "")
	}

	return ids, nil
}

func mergeInterface(remote, desired api.Interface) (api.Interface, bool) {
	changed := false
	if desired.Kind != "" && remote.Kind != desired.Kind {
		remote.Kind = desired.Kind
		changed = true
	}
	if desired.MAC != "" && remote.MAC != desired.MAC {
		remote.MAC = desired.MAC
		changed = true
	}
	if desired.SpeedMbps != 0 && remote.SpeedMbps != desired.SpeedMbps {
		remote.SpeedMbps = desired.SpeedMbps
		changed = true
	}
	if desired.Duplex != "" && remote.Duplex != desired.Duplex {
		remote.Duplex = desired.Duplex
		changed = true
	}
	if remote.Enabled != desired.Enabled {
		remote.Enabled = desired.Enabled
		changed = true
	}
	if desired.LAGID != nil && (remote.LAGID == nil || *remote.LAGID != *desired.LAGID) {
		remote.LAGID = desired.LAGID
		changed = true
	}
	if !intSlicesEqual(remote.VLANs, desired.VLANs) {
		remote.VLANs = desired.VLANs
		changed = true
	}
	return remote, changed
}

// reconcileIPs assigns addresses to this host's interfaces. Conflicted
// addresses were excluded during the build phase and are only reported.
func (e *Engine) reconcileIPs(ctx context.Context, host *api.Device, ips []ipSpec, ifaceIDs map[string]uuid.UUID, conflicted map[string]string, report *Report) error {
	for _, ip := range ips {
		if reason, ok := conflicted[ip.address]; ok {
			report.add("IPAddress", ip.address, OpConflict, reason)
			continue
		}
		ifaceID, ok := ifaceIDs[ip.ifaceName]
		if !ok {
			report.add("IPAddress", ip.address, OpSkip, "owning interface not reconciled")
			continue
		}

		desired := api.IPAddress{
			Address:     ip.address,
			Status:      api.IPStatusActive,
			InterfaceID: &ifaceID,
		}
		if ip.anycast {
			desired.Role = api.IPRoleAnycast
		}

		existing, err := e.client.FindIPAddresses(ctx, ip.address)
		if err != nil {
			return err
		}
		var mine *api.IPAddress
		for i := range existing {
			if existing[i].InterfaceID != nil && *existing[i].InterfaceID == ifaceID {
				mine = &existing[i]
				break
			}
		}

		if mine == nil {
			if e.dryRun {
				report.add("IPAddress", ip.address, OpCreate, "dry-run")
				continue
			}
			if _, err := e.client.CreateIPAddress(ctx, desired); err != nil {
				return err
			}
			report.add("IPAddress", ip.address, OpCreate, "")
			continue
		}

		if mine.Role == desired.Role && mine.Status == desired.Status {
			report.add("IPAddress", ip.address, OpNoop, "")
			continue
		}
		desired.ID = mine.ID
		if e.dryRun {
			report.add("IPAddress", ip.address, OpUpdate, "dry-run")
			continue
		}
		if _, err := e.client.UpdateIPAddress(ctx, desired); err != nil {
			return err
		}
		report.add("IPAddress", ip.address, OpUpdate, "")
	}
	return nil
}

// reconcileInventory creates or updates component items and flags
// stale ones. Parent items (virtual drives) precede their children in
// specs, so parent IDs resolve in one pass.
func (e *Engine) reconcileInventory(ctx context.Context, host *api.Device, specs []itemSpec, report *Report) error {
	remotes, err := e.client.ListInventory(ctx, host.ID)
	if err != nil {
		return err
	}
	remoteByKey := map[string]api.InventoryItem{}
	for _, r := range remotes {
		remoteByKey[remoteItemKey(r)] = r
	}

	now := time.Now().UTC()
	desiredKeys := map[string]bool{}
	idByKey := map[string]uuid.UUID{}

	for _, spec := range specs {
		key := spec.key()
		desiredKeys[key] = true

		desired := api.InventoryItem{
			DeviceID:     host.ID,
			Kind:         spec.kind,
			Name:         spec.name,
			Serial:       spec.serial,
			PartID:       spec.partID,
			Tags:         []string{syncTag},
			CustomFields: spec.custom,
		}
		if spec.parentKey != "" {
			if parentID, ok := idByKey[spec.parentKey]; ok {
				desired.ParentID = &parentID
			}
		}

		if err := e.cache.RecordSeen(host.Serial, string(spec.kind), key, now); err != nil {
			e.log.Warnf("state cache write failed: %v", err)
		}

		remote, exists := remoteByKey[key]
		if !exists {
			if e.dryRun {
				report.add("InventoryItem", key, OpCreate, "dry-run")
				idByKey[key] = uuid.New()
				continue
			}
			created, err := e.client.CreateInventoryItem(ctx, desired)
			if err != nil {
				return err
			}
			report.add("InventoryItem", key, OpCreate, "")
			idByKey[key] = created.ID
			continue
		}

		idByKey[key] = remote.ID
		merged, changed := mergeItem(remote, desired)
		if !changed {
			report.add("InventoryItem", key, OpNoop, "")
			continue
		}
		if e.dryRun {
			report.add("InventoryItem", key, OpUpdate, "dry-run")
			continue
		}
		if _, err := e.client.UpdateInventoryItem(ctx, merged); err != nil {
			return err
		}
		report.add("InventoryItem", key, OpUpdate, "")
	}

	return e.flagStaleItems(ctx, host, remoteByKey, desiredKeys, report)
}

// flagStaleItems tags previously synced items that disappeared from
// the local facts. Flagged, never deleted.
func (e *Engine) flagStaleItems(ctx context.Context, host *api.Device, remoteByKey map[string]api.InventoryItem, desiredKeys map[string]bool, report *Report) error {
	previously := map[string]bool{}
	if seen, err := e.cache.PreviouslySeen(host.Serial); err == nil {
		for _, s := range seen {
			previously[s.ItemKey] = true
		}
	}

	for key, remote := range remoteByKey {
		if desiredKeys[key] {
			continue
		}
		ours := funk.ContainsString(remote.Tags, syncTag) || previously[key]
		if !ours || funk.ContainsString(remote.Tags, staleTag) {
			continue
		}
		report.Stale = append(report.Stale, key)
		remote.Tags = append(remote.Tags, staleTag)
		if e.dryRun {
			report.add("InventoryItem", key, OpUpdate, "stale (dry-run)")
			continue
		}
		if _, err := e.client.UpdateInventoryItem(ctx, remote); err != nil {
			return err
		}
		report.add("InventoryItem", key, OpUpdate, "stale")
	}
	return nil
}

func mergeItem(remote, desired api.InventoryItem) (api.InventoryItem, bool) {
	changed := false
	// an item that is observed again is no longer stale
	if funk.ContainsString(remote.Tags, staleTag) {
		remote.Tags = funk.FilterString(remote.Tags, func(tag string) bool { return tag != staleTag })
		changed = true
	}
	if desired.Name != "" && remote.Name != desired.Name {
		remote.Name = desired.Name
		changed = true
	}
	if desired.PartID != "" && remote.PartID != desired.PartID {
		remote.PartID = desired.PartID
		changed = true
	}
	if desired.ParentID != nil && (remote.ParentID == nil || *remote.ParentID != *desired.ParentID) {
		remote.ParentID = desired.ParentID
		changed = true
	}
	for _, tag := range desired.Tags {
		if !funk.ContainsString(remote.Tags, tag) {
			remote.Tags = append(remote.Tags, tag)
			changed = true
		}
	}
	for k, v := range desired.CustomFields {
		if remote.CustomFields[k] != v {
			if remote.CustomFields == nil {
				remote.CustomFields = map[string]string{}
			}
			remote.CustomFields[k] = v
			changed = true
		}
	}
	return remote, changed
}

func remoteItemKey(item api.InventoryItem) string {
	id := item.Serial
	if id == "" {
		id = item.Name
	}
	return string(item.Kind) + "/" + id
}

// reconcileCables creates cable records for neighbors whose remote
// device and interface both resolve. Unresolved neighbors are skipped,
// never errors: cabling is opportunistic.
func (e *Engine) reconcileCables(ctx context.Context, ifaceIDs map[string]uuid.UUID, cables []cableSpec, report *Report) error {
	for _, c := range cables {
		key := c.localIface + "<->" + c.remoteName + "/" + c.remoteIface

		localID, ok := ifaceIDs[c.localIface]
		if !ok {
			report.add("Cable", key, OpSkip, "local interface unknown")
			continue
		}
		remoteDevice, err := e.client.FindDeviceByName(ctx, c.remoteName)
		if err != nil {
			return err
		}
		if remoteDevice == nil {
			e.log.Debugf("neighbor %q not found remotely, skipping cable", c.remoteName)
			report.add("Cable", key, OpSkip, "remote device unknown")
			continue
		}
		remoteIfaces, err := e.client.ListInterfaces(ctx, remoteDevice.ID)
		if err != nil {
			return err
		}
		var remoteIfaceID *uuid.UUID
		for _, ri := range remoteIfaces {
			if ri.Name == c.remoteIface {
				id := ri.ID
				remoteIfaceID = &id
				break
			}
		}
		if remoteIfaceID == nil {
			report.add("Cable", key, OpSkip, "remote interface unknown")
			continue
		}

		existing, err := e.client.FindCable(ctx, localID, *remoteIfaceID)
		if err != nil {
			return err
		}
		if existing != nil {
			report.add("Cable", key, OpNoop, "")
			continue
		}
		if e.dryRun {
			report.add("Cable", key, OpCreate, "dry-run")
			continue
		}
		if _, err := e.client.CreateCable(ctx, api.Cable{InterfaceAID: localID, InterfaceBID: *remoteIfaceID}); err != nil {
			return err
		}
		report.add("Cable", key, OpCreate, "")
	}
	return nil
}

func intSlicesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
