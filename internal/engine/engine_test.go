package engine_test

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/racksync/racksync/api/v1alpha1"
	"github.com/racksync/racksync/internal/client"
	"github.com/racksync/racksync/internal/config"
	"github.com/racksync/racksync/internal/engine"
	"github.com/racksync/racksync/internal/facts"
	"github.com/racksync/racksync/internal/raid"
	"github.com/racksync/racksync/internal/statecache"
)

func newEngine(cfg *config.Config, fake *client.Fake) *engine.Engine {
	return engine.New(cfg, fake, nil, facts.NewRegistry(), cfg.Overrides, false)
}

func standaloneFacts() *facts.HostFacts {
	return &facts.HostFacts{
		Hostname: "compute-01",
		DMI: facts.DMI{
			Manufacturer: "Supermicro",
			ProductName:  "SYS-1029U-TRT",
			Serial:       "S424242X01",
		},
		NICs: []facts.NIC{
			{Name: "bond0", Bond: true, MAC: "aa:bb:cc:00:00:10", Up: true,
				IPs: []facts.IPAssignment{{Address: "192.0.2.10/24"}}},
			{Name: "eth0", MAC: "aa:bb:cc:00:00:01", SpeedMbps: 10000, Duplex: "full", Up: true, BondMaster: "bond0"},
			{Name: "eth1", MAC: "aa:bb:cc:00:00:02", SpeedMbps: 10000, Duplex: "full", Up: true, BondMaster: "bond0"},
			{Name: "bond0.42", VLANParent: "bond0", VLANTag: 42, Up: true,
				IPs: []facts.IPAssignment{{Address: "198.51.100.5/24"}}},
		},
		Components: []facts.Component{
			{Kind: "cpu", Name: "Xeon Gold 6230", Serial: "CPU0-SER", Position: "CPU0"},
			{Kind: "ram", Name: "32GB DIMM", Serial: "RAM-A1", Position: "A1"},
			{Kind: "psu", Name: "PWS-1K02A-1R", Serial: "PSU1-SER"},
		},
		RAID: []facts.RAIDOutput{{
			Format:         raid.FormatKeyValue,
			ControllerInfo: "Product Name = AOC-S3108L\nSerial Number = RC-1\n",
			VirtualDrives:  "Virtual Drive = 0\nDrive Group = 0\nRAID Level = RAID1\nState = Optl\nSize = 446.625 GB\nOS Device = /dev/sda\n",
			PhysicalDisks: "Drive = 252:0\nDrive Group = 0\nSerial Number = PD-0\nSize = 446.625 GB\nState = Onln\n\n" +
				"Drive = 252:1\nDrive Group = 0\nSerial Number = PD-1\nSize = 446.625 GB\nState = Onln\n",
		}},
		Mounts: map[string]string{"/dev/sda": "/"},
	}
}

var _ = Describe("Reconciliation engine", func() {
	var (
		fake *client.Fake
		cfg  *config.Config
		ctx  context.Context
	)

	BeforeEach(func() {
		fake = client.NewFake()
		cfg = config.NewDefault()
		cfg.Service.Server = "https://inventory.example.com"
		cfg.Site = "dc1"
		cfg.ExpandVirtualDrives = true
		ctx = context.TODO()
	})

	Context("idempotence", func() {
		It("issues zero writes on a second identical run", func() {
			e := newEngine(cfg, fake)

			report, err := e.Run(ctx, standaloneFacts())
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Created).To(BeNumerically(">", 0))
			Expect(fake.Writes()).To(BeNumerically(">", 0))

			fake.ResetCounters()
			report, err = e.Run(ctx, standaloneFacts())
			Expect(err).ToNot(HaveOccurred())
			Expect(fake.Writes()).To(BeZero())
			Expect(report.Created).To(BeZero())
			Expect(report.Updated).To(BeZero())
			Expect(report.Unchanged).To(BeNumerically(">", 0))
		})

		It("resolves the same device identifier on every run", func() {
			e := newEngine(cfg, fake)

			_, err := e.Run(ctx, standaloneFacts())
			Expect(err).ToNot(HaveOccurred())
			first, err := fake.FindDevice(ctx, "Supermicro", "SYS-1029U-TRT", "S424242X01", "dc1")
			Expect(err).ToNot(HaveOccurred())
			Expect(first).ToNot(BeNil())

			_, err = e.Run(ctx, standaloneFacts())
			Expect(err).ToNot(HaveOccurred())
			second, err := fake.FindDevice(ctx, "Supermicro", "SYS-1029U-TRT", "S424242X01", "dc1")
			Expect(err).ToNot(HaveOccurred())
			Expect(second.ID).To(Equal(first.ID))
			Expect(len(fake.Devices)).To(Equal(1))
		})
	})

	Context("blade topology", func() {
		bladeFacts := func() *facts.HostFacts {
			return &facts.HostFacts{
				Hostname: "blade-07",
				DMI: facts.DMI{
					Manufacturer:        "Dell Inc.",
					ProductName:         "PowerEdge M640",
					Serial:              "BLD-07",
					ChassisManufacturer: "Dell Inc.",
					ChassisModel:        "PowerEdge M1000e",
					ChassisSerial:       "CHS-01",
					ChassisLocation:     "Slot 03",
				},
			}
		}

		seedChassisType := func(bays ...string) {
			id := uuid.New()
			fake.DeviceTypes[id] = api.DeviceType{
				ID:           id,
				Manufacturer: "Dell Inc.",
				Model:        "PowerEdge M1000e",
				Bays:         bays,
			}
		}

		It("binds the blade to its chassis bay", func() {
			seedChassisType("Slot 1", "Slot 2", "Slot 3", "Slot 4")

			e := newEngine(cfg, fake)
			report, err := e.Run(ctx, bladeFacts())
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Created).To(BeNumerically(">=", 2))

			blade, err := fake.FindDevice(ctx, "Dell Inc.", "PowerEdge M640", "BLD-07", "dc1")
			Expect(err).ToNot(HaveOccurred())
			Expect(blade).ToNot(BeNil())
			Expect(blade.Bay).To(Equal("Slot 3"))
			Expect(blade.ParentID).ToNot(BeNil())

			chassis := fake.Devices[*blade.ParentID]
			Expect(chassis.Serial).To(Equal("CHS-01"))
			Expect(chassis.Role).To(Equal("chassis"))
		})

		It("fails fatally without writes when the slot matches no bay", func() {
			seedChassisType("Slot 1", "Slot 2")

			e := newEngine(cfg, fake)
			_, err := e.Run(ctx, bladeFacts())

			var terr *engine.TopologyError
			Expect(err).To(HaveOccurred())
			Expect(errors.As(err, &terr)).To(BeTrue())
			Expect(terr.Slot).To(Equal("Slot 3"))
			Expect(fake.Writes()).To(BeZero())
		})

		It("registers expansion hardware as a child device in its own bay", func() {
			seedChassisType("Slot 1", "Slot 2", "Slot 3", "Slot 4")
			cfg.ExpansionAsDevice = true

			f := bladeFacts()
			f.Expansion = &facts.Expansion{Model: "GPU-EXP-01", Serial: "EXP-01", Bay: "Slot 2"}

			e := newEngine(cfg, fake)
			_, err := e.Run(ctx, f)
			Expect(err).ToNot(HaveOccurred())

			expansion, err := fake.FindDevice(ctx, "Dell Inc.", "GPU-EXP-01", "EXP-01", "dc1")
			Expect(err).ToNot(HaveOccurred())
			Expect(expansion).ToNot(BeNil())
			Expect(expansion.Name).To(Equal("blade-07-expansion"))
			Expect(expansion.Role).To(Equal("expansion"))
			Expect(expansion.Bay).To(Equal("Slot 2"))

			blade, err := fake.FindDevice(ctx, "Dell Inc.", "PowerEdge M640", "BLD-07", "dc1")
			Expect(err).ToNot(HaveOccurred())
			Expect(expansion.ParentID).ToNot(BeNil())
			Expect(*expansion.ParentID).To(Equal(*blade.ParentID))

			fake.ResetCounters()
			_, err = e.Run(ctx, f)
			Expect(err).ToNot(HaveOccurred())
			Expect(fake.Writes()).To(BeZero())
		})

		It("fails fatally when the expansion bay matches no chassis bay", func() {
			seedChassisType("Slot 1", "Slot 2", "Slot 3", "Slot 4")
			cfg.ExpansionAsDevice = true

			f := bladeFacts()
			f.Expansion = &facts.Expansion{Model: "GPU-EXP-01", Serial: "EXP-01", Bay: "Slot 9"}

			e := newEngine(cfg, fake)
			_, err := e.Run(ctx, f)

			var terr *engine.TopologyError
			Expect(err).To(HaveOccurred())
			Expect(errors.As(err, &terr)).To(BeTrue())
			Expect(terr.Slot).To(Equal("Slot 9"))
			Expect(fake.Writes()).To(BeZero())
		})
	})

	Context("IP uniqueness", func() {
		hostWithIP := func(name, serial, mac string, anycast bool) *facts.HostFacts {
			return &facts.HostFacts{
				Hostname: name,
				DMI:      facts.DMI{Manufacturer: "Supermicro", ProductName: "SYS-1029U-TRT", Serial: serial},
				NICs: []facts.NIC{{
					Name: "eth0", MAC: mac, Up: true,
					IPs: []facts.IPAssignment{{Address: "10.0.0.5/32", Anycast: anycast}},
				}},
			}
		}

		It("allows the same address on two hosts when marked anycast", func() {
			e := newEngine(cfg, fake)

			report, err := e.Run(ctx, hostWithIP("svc-a", "SER-0A", "aa:bb:cc:00:0a:01", true))
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Conflicts).To(BeZero())

			report, err = e.Run(ctx, hostWithIP("svc-b", "SER-0B", "aa:bb:cc:00:0b:01", true))
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Conflicts).To(BeZero())
			Expect(len(fake.IPs)).To(Equal(2))
		})

		It("reports a conflict for a duplicated address without anycast", func() {
			e := newEngine(cfg, fake)

			_, err := e.Run(ctx, hostWithIP("svc-a", "SER-0A", "aa:bb:cc:00:0a:01", false))
			Expect(err).ToNot(HaveOccurred())

			report, err := e.Run(ctx, hostWithIP("svc-b", "SER-0B", "aa:bb:cc:00:0b:01", false))
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Conflicts).To(Equal(1))
			Expect(len(fake.IPs)).To(Equal(1))
			// the second host itself still reconciled
			Expect(len(fake.Devices)).To(Equal(2))
		})
	})

	Context("MAC scoping", func() {
		It("accepts the same MAC on interfaces of different devices", func() {
			e := newEngine(cfg, fake)

			mkFacts := func(name, serial string) *facts.HostFacts {
				return &facts.HostFacts{
					Hostname: name,
					DMI:      facts.DMI{Manufacturer: "Supermicro", ProductName: "SYS-1029U-TRT", Serial: serial},
					NICs:     []facts.NIC{{Name: "eth0", MAC: "aa:bb:cc:dd:ee:ff", Up: true}},
				}
			}

			_, err := e.Run(ctx, mkFacts("host-a", "SER-A"))
			Expect(err).ToNot(HaveOccurred())
			_, err = e.Run(ctx, mkFacts("host-b", "SER-B"))
			Expect(err).ToNot(HaveOccurred())

			macs := 0
			for _, iface := range fake.Interfaces {
				if iface.MAC == "aa:bb:cc:dd:ee:ff" {
					macs++
				}
			}
			Expect(macs).To(Equal(2))
		})
	})

	Context("cabling", func() {
		It("creates cables only when both endpoints resolve", func() {
			switchDev, err := fake.CreateDevice(ctx, api.Device{Name: "sw-leaf-01", Manufacturer: "Arista", Model: "7050X", Serial: "SW-1"})
			Expect(err).ToNot(HaveOccurred())
			_, err = fake.CreateInterface(ctx, api.Interface{DeviceID: switchDev.ID, Name: "Ethernet12", Kind: api.InterfaceKindPhysical})
			Expect(err).ToNot(HaveOccurred())
			fake.ResetCounters()

			f := standaloneFacts()
			f.Neighbors = []facts.Neighbor{
				{LocalInterface: "eth0", RemoteName: "sw-leaf-01", RemoteInterface: "Ethernet12"},
				{LocalInterface: "eth1", RemoteName: "sw-unknown", RemoteInterface: "Ethernet1"},
			}

			e := newEngine(cfg, fake)
			report, err := e.Run(ctx, f)
			Expect(err).ToNot(HaveOccurred())
			Expect(len(fake.Cables)).To(Equal(1))
			Expect(report.Skipped).To(BeNumerically(">=", 1))
		})
	})

	Context("inventory decomposition", func() {
		It("links physical disks to their virtual drive with shared custom fields", func() {
			e := newEngine(cfg, fake)
			_, err := e.Run(ctx, standaloneFacts())
			Expect(err).ToNot(HaveOccurred())

			var vdID uuid.UUID
			for id, item := range fake.Items {
				if item.Name == "vd-0" {
					vdID = id
				}
			}
			Expect(vdID).ToNot(Equal(uuid.Nil))

			children := 0
			for _, item := range fake.Items {
				if item.ParentID != nil && *item.ParentID == vdID {
					children++
					Expect(item.CustomFields["vd_raid_type"]).To(Equal("RAID1"))
					Expect(item.CustomFields["vd_consistency"]).To(Equal("Consistent"))
					Expect(item.CustomFields["mount_point"]).To(Equal("/"))
					Expect(item.CustomFields["pd_identifier"]).ToNot(BeEmpty())
				}
			}
			Expect(children).To(Equal(2))
		})

		It("flags stale items without deleting them", func() {
			e := newEngine(cfg, fake)
			_, err := e.Run(ctx, standaloneFacts())
			Expect(err).ToNot(HaveOccurred())
			itemsBefore := len(fake.Items)

			f := standaloneFacts()
			f.Components = f.Components[:1]
			report, err := e.Run(ctx, f)
			Expect(err).ToNot(HaveOccurred())

			Expect(report.Stale).To(ContainElement("ram/RAM-A1"))
			Expect(report.Stale).To(ContainElement("psu/PSU1-SER"))
			Expect(len(fake.Items)).To(Equal(itemsBefore))
		})

		It("clears the stale flag when an item is observed again", func() {
			e := newEngine(cfg, fake)
			_, err := e.Run(ctx, standaloneFacts())
			Expect(err).ToNot(HaveOccurred())

			f := standaloneFacts()
			f.Components = f.Components[:1]
			report, err := e.Run(ctx, f)
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Stale).To(ContainElement("ram/RAM-A1"))

			report, err = e.Run(ctx, standaloneFacts())
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Stale).To(BeEmpty())

			var ram *api.InventoryItem
			for id := range fake.Items {
				item := fake.Items[id]
				if item.Serial == "RAM-A1" {
					ram = &item
				}
			}
			Expect(ram).ToNot(BeNil())
			Expect(ram.Tags).To(ContainElement("racksync"))
			Expect(ram.Tags).ToNot(ContainElement("stale"))
		})

		It("flags untagged remote items recorded in the state cache", func() {
			cache, err := statecache.Open(filepath.Join(GinkgoT().TempDir(), "state.db"))
			Expect(err).ToNot(HaveOccurred())
			defer func() { _ = cache.Close() }()

			e := engine.New(cfg, fake, cache, facts.NewRegistry(), cfg.Overrides, false)
			_, err = e.Run(ctx, standaloneFacts())
			Expect(err).ToNot(HaveOccurred())

			// simulate records written before tagging existed
			for id, item := range fake.Items {
				item.Tags = nil
				fake.Items[id] = item
			}

			f := standaloneFacts()
			f.Components = f.Components[:1]
			report, err := e.Run(ctx, f)
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Stale).To(ContainElement("ram/RAM-A1"))

			for _, item := range fake.Items {
				if item.Serial == "RAM-A1" {
					Expect(item.Tags).To(ContainElement("stale"))
				}
			}
		})
	})
})
