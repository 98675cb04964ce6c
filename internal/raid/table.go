package raid

import "strings"

// tableParser handles controllers whose CLI prints pipe-delimited
// tables with a header row naming the columns.
type tableParser struct{}

func (p *tableParser) ControllerInfo(text string) (Controller, error) {
	ctrl := Controller{}
	for _, row := range tableRows(text) {
		if product, ok := row["Product"]; ok {
			ctrl.Product = product
			ctrl.Serial = row["Serial"]
			break
		}
	}
	return ctrl, nil
}

func (p *tableParser) ListVirtualDrives(text string) ([]VirtualDrive, []error) {
	var drives []VirtualDrive
	var errs []error

	for _, row := range tableRows(text) {
		id, ok := row["DG/VD"]
		if !ok {
			continue
		}
		level, ok := row["Type"]
		if !ok || level == "" {
			errs = append(errs, &ParseError{Entry: "VD " + id, Missing: "Type"})
			continue
		}
		group, vd, _ := strings.Cut(id, "/")
		drives = append(drives, VirtualDrive{
			ID:        vd,
			Group:     group,
			Name:      row["Name"],
			Level:     NormalizeLevel(level),
			State:     NormalizeState(row["State"]),
			SizeBytes: ParseSize(row["Size"]),
			Device:    row["Device"],
		})
	}
	return drives, errs
}

func (p *tableParser) ListPhysicalDisks(text string) ([]PhysicalDisk, []error) {
	var disks []PhysicalDisk
	var errs []error

	for _, row := range tableRows(text) {
		id, ok := row["EID:Slt"]
		if !ok || id == "" {
			if _, candidate := row["Serial"]; candidate {
				errs = append(errs, &ParseError{Entry: "serial " + row["Serial"], Missing: "EID:Slt"})
			}
			continue
		}
		group := row["DG"]
		if group == "-" {
			group = ""
		}
		disks = append(disks, PhysicalDisk{
			ID:        id,
			Group:     group,
			Serial:    row["Serial"],
			Model:     row["Model"],
			SizeBytes: ParseSize(row["Size"]),
			State:     NormalizeState(row["State"]),
		})
	}
	return disks, errs
}

// tableRows parses a pipe-delimited table. The first non-empty line is
// the header; separator lines of dashes are skipped.
func tableRows(text string) []map[string]string {
	var header []string
	var rows []map[string]string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Trim(line, "-| ") == "" {
			continue
		}
		cells := strings.Split(line, "|")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		if header == nil {
			header = cells
			continue
		}
		row := map[string]string{}
		for i, cell := range cells {
			if i < len(header) {
				row[header[i]] = cell
			}
		}
		rows = append(rows, row)
	}
	return rows
}
