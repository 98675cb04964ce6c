package engine

import (
	"context"
	"sort"

	api "github.com/racksync/racksync/api/v1alpha1"
	"github.com/racksync/racksync/internal/facts"
)

type ifaceSpec struct {
	name      string
	kind      api.InterfaceKind
	mac       string
	speedMbps int
	duplex    string
	enabled   bool
	// lagName names the owning bond for member interfaces.
	lagName string
	vlans   []int
}

type ipSpec struct {
	ifaceName string
	address   string
	anycast   bool
}

type cableSpec struct {
	localIface  string
	remoteName  string
	remoteIface string
}

// buildNetwork derives the desired interface, address and cable state
// from the observed NICs and LLDP neighbors. Pure: no remote calls.
// The returned interfaces are ordered bonds → physical → vlan so that
// apply can resolve LAG membership as it goes.
func buildNetwork(nics []facts.NIC, neighbors []facts.Neighbor) ([]ifaceSpec, []ipSpec, []cableSpec) {
	var bonds, physical, vlans []ifaceSpec
	var ips []ipSpec

	// VLAN tags observed on subinterfaces roll up to the parent.
	parentVLANs := map[string][]int{}
	for _, nic := range nics {
		if nic.VLANParent != "" {
			parentVLANs[nic.VLANParent] = append(parentVLANs[nic.VLANParent], nic.VLANTag)
		}
	}
	for _, tags := range parentVLANs {
		sort.Ints(tags)
	}

	for _, nic := range nics {
		spec := ifaceSpec{
			name:      nic.Name,
			mac:       nic.MAC,
			speedMbps: nic.SpeedMbps,
			duplex:    nic.Duplex,
			enabled:   nic.Up,
			lagName:   nic.BondMaster,
		}

		switch {
		case nic.Bond:
			spec.kind = api.InterfaceKindBond
			spec.vlans = parentVLANs[nic.Name]
			bonds = append(bonds, spec)
		case nic.VLANParent != "":
			spec.kind = api.InterfaceKindVLAN
			spec.vlans = []int{nic.VLANTag}
			vlans = append(vlans, spec)
		default:
			spec.kind = api.InterfaceKindPhysical
			spec.vlans = parentVLANs[nic.Name]
			physical = append(physical, spec)
		}

		for _, ip := range nic.IPs {
			ips = append(ips, ipSpec{ifaceName: nic.Name, address: ip.Address, anycast: ip.Anycast})
		}
	}

	ifaces := append(append(bonds, physical...), vlans...)

	var cables []cableSpec
	for _, n := range neighbors {
		cables = append(cables, cableSpec{
			localIface:  n.LocalInterface,
			remoteName:  n.RemoteName,
			remoteIface: n.RemoteInterface,
		})
	}

	return ifaces, ips, cables
}

// checkIPConflict verifies the address may be assigned to this host.
// An address already bound to another device's interface is accepted
// only when both sides agree it is anycast; otherwise the caller gets
// a ConflictError and must skip the address without mutation.
// host is nil when the host device does not exist remotely yet.
func (e *Engine) checkIPConflict(ctx context.Context, ip ipSpec, host *api.Device) error {
	existing, err := e.client.FindIPAddresses(ctx, ip.address)
	if err != nil {
		return err
	}

	for _, assigned := range existing {
		if assigned.InterfaceID == nil {
			continue
		}
		iface, err := e.client.GetInterface(ctx, *assigned.InterfaceID)
		if err != nil {
			return err
		}
		if iface == nil {
			continue
		}
		if host != nil && iface.DeviceID == host.ID {
			continue
		}
		// foreign assignment: only legitimate for anycast on both sides
		if ip.anycast && assigned.Role == api.IPRoleAnycast {
			continue
		}
		return &ConflictError{
			Entity: "IPAddress",
			Key:    ip.address,
			Reason: "address already assigned to another device and not marked anycast",
		}
	}
	return nil
}
