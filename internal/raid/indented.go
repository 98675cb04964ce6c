package raid

import "strings"

// indentedParser handles controllers whose CLI prints a hierarchy by
// indentation depth (ssacli style): controller at column zero, arrays
// one level in, logical/physical drives below their array.
type indentedParser struct{}

func (p *indentedParser) ControllerInfo(text string) (Controller, error) {
	ctrl := Controller{}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := indentOf(line)
		trimmed := strings.TrimSpace(line)

		if indent == 0 && ctrl.Product == "" {
			ctrl.Product = trimmed
			continue
		}
		if key, value, found := strings.Cut(trimmed, ":"); found && strings.TrimSpace(key) == "Serial Number" && ctrl.Serial == "" {
			ctrl.Serial = strings.TrimSpace(value)
		}
		if strings.HasPrefix(trimmed, "Array ") {
			break
		}
	}
	return ctrl, nil
}

func (p *indentedParser) ListVirtualDrives(text string) ([]VirtualDrive, []error) {
	var drives []VirtualDrive
	var errs []error

	for _, entry := range indentedEntries(text, "Logical Drive") {
		level, ok := entry.fields["Fault Tolerance"]
		if !ok {
			errs = append(errs, &ParseError{Entry: "Logical Drive " + entry.id, Missing: "Fault Tolerance"})
			continue
		}
		drives = append(drives, VirtualDrive{
			ID:        entry.id,
			Group:     entry.group,
			Name:      entry.fields["Label"],
			Level:     NormalizeLevel(level),
			State:     NormalizeState(entry.fields["Status"]),
			SizeBytes: ParseSize(entry.fields["Size"]),
			Device:    entry.fields["Disk Name"],
		})
	}
	return drives, errs
}

func (p *indentedParser) ListPhysicalDisks(text string) ([]PhysicalDisk, []error) {
	var disks []PhysicalDisk

	for _, entry := range indentedEntries(text, "physicaldrive") {
		disks = append(disks, PhysicalDisk{
			ID:        entry.id,
			Group:     entry.group,
			Serial:    entry.fields["Serial Number"],
			Model:     entry.fields["Model"],
			SizeBytes: ParseSize(entry.fields["Size"]),
			State:     NormalizeState(entry.fields["Status"]),
		})
	}
	// The drive identifier lives on the header line, so an entry
	// without one never materializes in this format.
	return disks, nil
}

type indentedEntry struct {
	id     string
	group  string
	fields map[string]string
}

// indentedEntries walks the hierarchy and collects entries whose
// header line starts with prefix. "Array X" headers set the group for
// everything nested below; an "unassigned" header clears it.
func indentedEntries(text, prefix string) []indentedEntry {
	var entries []indentedEntry
	var current *indentedEntry
	group := ""
	entryIndent := -1

	flush := func() {
		if current != nil {
			entries = append(entries, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		indent := indentOf(line)

		switch {
		case strings.HasPrefix(trimmed, "Array "):
			flush()
			group = strings.TrimSpace(strings.TrimPrefix(trimmed, "Array"))
		case strings.EqualFold(trimmed, "unassigned"):
			flush()
			group = ""
		case strings.HasPrefix(trimmed, prefix):
			flush()
			id := strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
			id = strings.TrimSpace(strings.TrimPrefix(id, ":"))
			current = &indentedEntry{
				id:     id,
				group:  group,
				fields: map[string]string{},
			}
			entryIndent = indent
		case current != nil && indent > entryIndent:
			if key, value, found := strings.Cut(trimmed, ":"); found {
				current.fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
			}
		case current != nil && indent <= entryIndent:
			flush()
		}
	}
	flush()
	return entries
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " "))
}
