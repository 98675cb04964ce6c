package raid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Level is the normalized RAID level of a virtual drive.
type Level string

const (
	RAID0        Level = "RAID0"
	RAID1        Level = "RAID1"
	RAID5        Level = "RAID5"
	RAID6        Level = "RAID6"
	RAID10       Level = "RAID10"
	RAID50       Level = "RAID50"
	RAID60       Level = "RAID60"
	JBOD         Level = "JBOD"
	LevelUnknown Level = "Unknown"
)

// State is the normalized consistency state of a drive or array.
type State string

const (
	StateConsistent State = "Consistent"
	StateDegraded   State = "Degraded"
	StateRebuilding State = "Rebuilding"
	StateUnknown    State = "Unknown"
)

// PhysicalDisk is one physical drive attached to a controller.
type PhysicalDisk struct {
	ID        string
	Group     string
	Serial    string
	Model     string
	SizeBytes int64
	State     State
}

// VirtualDrive is one logical volume composed of physical disks.
type VirtualDrive struct {
	ID        string
	Group     string
	Name      string
	Level     Level
	State     State
	SizeBytes int64
	Device    string
	Disks     []PhysicalDisk
}

// Controller groups the virtual drives of one RAID adapter plus any
// disks not assigned to an array.
type Controller struct {
	Product    string
	Serial     string
	Drives     []VirtualDrive
	Unassigned []PhysicalDisk
}

// ParseError reports an entry missing its mandatory identifier or
// RAID-type token. The entry is skipped; parsing continues.
type ParseError struct {
	Entry   string
	Missing string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparsable raid entry %q: missing %s", e.Entry, e.Missing)
}

// Parser converts one vendor tool's raw text into the uniform model.
// Implementations are pure: identical text yields an identical model.
type Parser interface {
	ControllerInfo(text string) (Controller, error)
	ListVirtualDrives(text string) ([]VirtualDrive, []error)
	ListPhysicalDisks(text string) ([]PhysicalDisk, []error)
}

// Format names of the supported vendor output styles.
const (
	FormatKeyValue = "keyvalue"
	FormatIndented = "indented"
	FormatTable    = "table"
)

// ParserFor selects the parser variant for a vendor output format.
func ParserFor(format string) (Parser, error) {
	switch format {
	case FormatKeyValue:
		return &keyValueParser{}, nil
	case FormatIndented:
		return &indentedParser{}, nil
	case FormatTable:
		return &tableParser{}, nil
	default:
		return nil, errors.Errorf("unsupported raid output format %q", format)
	}
}

// Normalize parses the three captured outputs of one controller and
// links physical disks to their virtual drives by group membership.
// Entry-level parse errors are returned alongside the model; the
// caller logs and continues.
func Normalize(format, controllerInfo, virtualDrives, physicalDisks string) (*Controller, []error, error) {
	parser, err := ParserFor(format)
	if err != nil {
		return nil, nil, err
	}

	ctrl, err := parser.ControllerInfo(controllerInfo)
	if err != nil {
		return nil, nil, err
	}

	vds, vdErrs := parser.ListVirtualDrives(virtualDrives)
	pds, pdErrs := parser.ListPhysicalDisks(physicalDisks)

	byGroup := map[string][]PhysicalDisk{}
	for _, pd := range pds {
		if pd.Group == "" {
			ctrl.Unassigned = append(ctrl.Unassigned, pd)
			continue
		}
		byGroup[pd.Group] = append(byGroup[pd.Group], pd)
	}
	for i := range vds {
		vds[i].Disks = byGroup[vds[i].Group]
	}
	ctrl.Drives = vds

	return &ctrl, append(vdErrs, pdErrs...), nil
}

// NormalizeLevel maps vendor RAID-level tokens onto the Level enum.
// Unrecognized tokens map to Unknown, never dropped.
func NormalizeLevel(token string) Level {
	t := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(token), " ", ""))
	t = strings.TrimPrefix(t, "PRIMARY-")
	switch t {
	case "RAID0", "RAID-0", "0":
		return RAID0
	case "RAID1", "RAID-1", "1", "RAID1(1+0)":
		return RAID1
	case "RAID5", "RAID-5", "5":
		return RAID5
	case "RAID6", "RAID-6", "6":
		return RAID6
	case "RAID10", "RAID-10", "10", "RAID1+0":
		return RAID10
	case "RAID50", "RAID-50", "50":
		return RAID50
	case "RAID60", "RAID-60", "60":
		return RAID60
	case "JBOD", "NONE", "RAW":
		return JBOD
	default:
		return LevelUnknown
	}
}

// NormalizeState maps vendor state tokens onto the State enum.
func NormalizeState(token string) State {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "optl", "optimal", "ok", "okay", "onln", "online", "consistent":
		return StateConsistent
	case "dgrd", "degraded", "pdgd", "partially degraded", "failed", "offln", "offline":
		return StateDegraded
	case "rbld", "rebuild", "rebuilding", "recovering", "cpybck", "copyback":
		return StateRebuilding
	default:
		return StateUnknown
	}
}

var sizeUnits = map[string]int64{
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
	"PB": 1 << 50,
}

// ParseSize converts a vendor size string ("446.625 GB", "1.818TB")
// to bytes. Unparsable sizes yield zero: size is an optional field.
func ParseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	numEnd := len(s)
	for i, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			numEnd = i
			break
		}
	}
	value, err := strconv.ParseFloat(s[:numEnd], 64)
	if err != nil {
		return 0
	}
	unit := strings.ToUpper(strings.TrimSpace(s[numEnd:]))
	mult, ok := sizeUnits[unit]
	if !ok {
		return 0
	}
	return int64(value * float64(mult))
}
