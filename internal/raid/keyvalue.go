package raid

import "strings"

// keyValueParser handles controllers whose CLI prints "Key = Value"
// stanzas separated by blank lines (storcli/perccli style).
type keyValueParser struct{}

func (p *keyValueParser) ControllerInfo(text string) (Controller, error) {
	ctrl := Controller{}
	for _, block := range kvBlocks(text) {
		if product, ok := block["Product Name"]; ok {
			ctrl.Product = product
			ctrl.Serial = block["Serial Number"]
			break
		}
	}
	return ctrl, nil
}

func (p *keyValueParser) ListVirtualDrives(text string) ([]VirtualDrive, []error) {
	var drives []VirtualDrive
	var errs []error

	for _, block := range kvBlocks(text) {
		id, ok := block["Virtual Drive"]
		if !ok {
			continue
		}
		level, ok := block["RAID Level"]
		if !ok {
			errs = append(errs, &ParseError{Entry: "Virtual Drive " + id, Missing: "RAID Level"})
			continue
		}
		drives = append(drives, VirtualDrive{
			ID:        id,
			Group:     block["Drive Group"],
			Name:      block["Name"],
			Level:     NormalizeLevel(level),
			State:     NormalizeState(block["State"]),
			SizeBytes: ParseSize(block["Size"]),
			Device:    block["OS Device"],
		})
	}
	return drives, errs
}

func (p *keyValueParser) ListPhysicalDisks(text string) ([]PhysicalDisk, []error) {
	var disks []PhysicalDisk
	var errs []error

	for _, block := range kvBlocks(text) {
		if _, isVD := block["Virtual Drive"]; isVD {
			continue
		}
		id, ok := block["Drive"]
		if !ok {
			if _, candidate := block["Serial Number"]; candidate {
				errs = append(errs, &ParseError{Entry: blockSummary(block), Missing: "Drive"})
			}
			continue
		}
		disks = append(disks, PhysicalDisk{
			ID:        id,
			Group:     block["Drive Group"],
			Serial:    block["Serial Number"],
			Model:     block["Model"],
			SizeBytes: ParseSize(block["Size"]),
			State:     NormalizeState(block["State"]),
		})
	}
	return disks, errs
}

// kvBlocks splits text into blank-line separated stanzas of
// "Key = Value" lines. Lines without a separator are ignored.
func kvBlocks(text string) []map[string]string {
	var blocks []map[string]string
	current := map[string]string{}

	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, current)
			current = map[string]string{}
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		current[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	flush()
	return blocks
}

func blockSummary(block map[string]string) string {
	if serial, ok := block["Serial Number"]; ok {
		return "serial " + serial
	}
	return "unidentified block"
}
