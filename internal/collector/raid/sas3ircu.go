package raid

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zenithax-cc/taotie/pkg/execute"
	"github.com/zenithax-cc/taotie/pkg/utils"
)

// Sas3ircu drives LSI SAS3 HBAs through the sas3ircu utility. Unlike
// storcli it only speaks fixed-width text, so parsing is line-oriented.
type Sas3ircu struct {
	path string
	sudo bool
}

func NewSas3ircu(path string, sudo bool) *Sas3ircu {
	return &Sas3ircu{path: path, sudo: sudo}
}

func (s *Sas3ircu) Name() string { return "sas3ircu" }

func (s *Sas3ircu) run(ctx context.Context, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, full := execute.WithSudo(s.sudo, s.path, args...)
	output := execute.CommandWithContext(ctx, name, full...)
	if output.Err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, s.path, output.Err)
	}
	if output.ExitCode != 0 {
		return nil, fmt.Errorf("sas3ircu %s: exit %d: %s", strings.Join(args, " "),
			output.ExitCode, strings.TrimSpace(string(output.Stderr)))
	}

	return output.Stdout, nil
}

func (s *Sas3ircu) Collect(ctx context.Context) (*Snapshot, error) {
	if !utils.FileExists(s.path) {
		return nil, fmt.Errorf("%w: %s not installed", ErrUnavailable, s.path)
	}

	indexes, err := s.listControllerIndexes(ctx)
	if err != nil {
		return nil, err
	}
	if len(indexes) == 0 {
		return nil, fmt.Errorf("%w: no controllers reported", ErrUnavailable)
	}

	snap := &Snapshot{Source: s.Name()}
	for _, idx := range indexes {
		data, err := s.run(ctx, strconv.Itoa(idx), "display")
		if err != nil {
			return nil, err
		}

		ctrl, drives, err := s.parseDisplay(idx, string(data))
		if err != nil {
			return nil, err
		}

		snap.Controllers = append(snap.Controllers, ctrl)
		snap.Drives = append(snap.Drives, drives...)
	}

	sortDrives(snap.Drives)

	return snap, nil
}

// listControllerIndexes parses `sas3ircu list`, whose table rows start with
// the adapter index.
func (s *Sas3ircu) listControllerIndexes(ctx context.Context) ([]int, error) {
	data, err := s.run(ctx, "list")
	if err != nil {
		return nil, err
	}

	var indexes []int
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		idx, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		indexes = append(indexes, idx)
	}

	return indexes, nil
}

const hardDiskHeader = "Device is a Hard disk"

// parseDisplay walks the display output block by block. Each physical drive
// section starts with the hard-disk header line.
func (s *Sas3ircu) parseDisplay(cid int, text string) (*Controller, []*PhysicalDrive, error) {
	ctrl := &Controller{ID: cid}
	var drives []*PhysicalDrive
	var current *PhysicalDrive

	flush := func() {
		if current != nil {
			drives = append(drives, current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, hardDiskHeader) {
			flush()
			current = &PhysicalDrive{Controller: cid, Enclosure: -1, Slot: -1}
			continue
		}
		if strings.HasPrefix(line, "Device is a") {
			// Enclosure services devices and the like.
			flush()
			continue
		}

		key, value, ok := utils.ParseLineKeyValue(line, ":")
		if !ok {
			continue
		}

		if current == nil {
			switch key {
			case "Controller type":
				ctrl.Model = value
			case "BIOS version":
				utils.FillField(value, &ctrl.Serial) // no serial in display; keep firmware id
			}
			continue
		}

		switch key {
		case "Enclosure #":
			current.Enclosure = atoiOr(value, -1)
		case "Slot #":
			current.Slot = atoiOr(value, -1)
		case "State":
			current.State = trimStateCode(value)
		case "Size (in MB)/(in sectors)":
			mb, _, _ := strings.Cut(value, "/")
			current.Size = strings.TrimSpace(mb) + " MB"
			current.SizeBytes = utils.ParseSize(current.Size)
		case "Model Number":
			current.Model = value
		case "Serial No":
			current.Serial = value
		case "Drive Type":
			current.Interface, current.Medium = splitDriveType(value)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, nil, &ParseError{Tool: s.Name(), Context: "display", Err: err}
	}

	for _, d := range drives {
		if d.Enclosure < 0 || d.Slot < 0 {
			return nil, nil, &ParseError{Tool: s.Name(), Context: "display",
				Err: fmt.Errorf("drive block without enclosure/slot coordinates")}
		}
		d.EIDSlt = fmt.Sprintf("%d:%d", d.Enclosure, d.Slot)
	}

	return ctrl, drives, nil
}

// trimStateCode turns "Ready (RDY)" into "Ready".
func trimStateCode(value string) string {
	if idx := strings.Index(value, "("); idx > 0 {
		return strings.TrimSpace(value[:idx])
	}
	return value
}

// splitDriveType turns "SATA_HDD" into ("SATA", "HDD").
func splitDriveType(value string) (string, string) {
	intf, medium, found := strings.Cut(value, "_")
	if !found {
		return value, ""
	}
	return intf, medium
}

func atoiOr(s string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return v
}
