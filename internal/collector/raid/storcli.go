package raid

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/zenithax-cc/taotie/pkg/execute"
	"github.com/zenithax-cc/taotie/pkg/utils"
)

// Storcli drives Broadcom/LSI MegaRAID controllers through the storcli
// binary and its JSON output mode.
type Storcli struct {
	path string
	sudo bool
}

func NewStorcli(path string, sudo bool) *Storcli {
	return &Storcli{path: path, sudo: sudo}
}

func (s *Storcli) Name() string { return "storcli" }

func (s *Storcli) run(ctx context.Context, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, full := execute.WithSudo(s.sudo, s.path, args...)
	output := execute.CommandWithContext(ctx, name, full...)
	if output.Err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, s.path, output.Err)
	}
	if output.ExitCode != 0 {
		stderr := strings.TrimSpace(string(output.Stderr))
		if strings.Contains(stderr, "command not found") || strings.Contains(stderr, "No such file") {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, stderr)
		}
		return nil, fmt.Errorf("storcli %s: exit %d: %s", strings.Join(args, " "), output.ExitCode, stderr)
	}

	return output.Stdout, nil
}

// Collect lists all controllers and the physical drives behind them.
func (s *Storcli) Collect(ctx context.Context) (*Snapshot, error) {
	if !utils.FileExists(s.path) {
		return nil, fmt.Errorf("%w: %s not installed", ErrUnavailable, s.path)
	}

	controllers, err := s.listControllers(ctx)
	if err != nil {
		return nil, err
	}
	if len(controllers) == 0 {
		return nil, fmt.Errorf("%w: no controllers reported", ErrUnavailable)
	}

	snap := &Snapshot{Source: s.Name(), Controllers: controllers}
	for _, ctrl := range controllers {
		drives, err := s.listPhysicalDrives(ctx, ctrl.ID)
		if err != nil {
			return nil, err
		}
		snap.Drives = append(snap.Drives, drives...)
	}

	sortDrives(snap.Drives)

	return snap, nil
}

func (s *Storcli) listControllers(ctx context.Context) ([]*Controller, error) {
	data, err := s.run(ctx, "show", "J")
	if err != nil {
		return nil, err
	}

	var js storJSON
	if err := json.Unmarshal(data, &js); err != nil {
		return nil, &ParseError{Tool: s.Name(), Context: "show J", Err: err}
	}
	if len(js.Controllers) == 0 {
		return nil, &ParseError{Tool: s.Name(), Context: "show J", Err: fmt.Errorf("missing Controllers array")}
	}

	rd := js.Controllers[0].ResponseData

	// Newer firmware reports a System Overview table; older builds only
	// expose Basics per controller entry.
	if raw, ok := rd["System Overview"]; ok {
		var overview []*systemOverview
		if err := json.Unmarshal(raw, &overview); err != nil {
			return nil, &ParseError{Tool: s.Name(), Context: "System Overview", Err: err}
		}
		controllers := make([]*Controller, 0, len(overview))
		for _, ov := range overview {
			controllers = append(controllers, &Controller{ID: ov.Ctl, Model: ov.Model, Serial: ov.Serial})
		}
		return controllers, nil
	}

	controllers := make([]*Controller, 0, len(js.Controllers))
	for _, entry := range js.Controllers {
		raw, ok := entry.ResponseData["Basics"]
		if !ok {
			continue
		}
		var basics storBasics
		if err := json.Unmarshal(raw, &basics); err != nil {
			return nil, &ParseError{Tool: s.Name(), Context: "Basics", Err: err}
		}
		controllers = append(controllers, &Controller{ID: basics.Controller, Model: basics.Model, Serial: basics.Serial})
	}

	return controllers, nil
}

func (s *Storcli) listPhysicalDrives(ctx context.Context, cid int) ([]*PhysicalDrive, error) {
	data, err := s.run(ctx, "/c"+strconv.Itoa(cid), "show", "all", "J")
	if err != nil {
		return nil, err
	}

	rd, err := s.responseData(data, "/c show all J")
	if err != nil {
		return nil, err
	}

	raw, ok := rd["PD LIST"]
	if !ok {
		// Controllers without attached drives omit the list entirely.
		return nil, nil
	}

	var entries []*pdEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &ParseError{Tool: s.Name(), Context: "PD LIST", Err: err}
	}

	details := s.collectDetails(ctx, cid)

	drives := make([]*PhysicalDrive, 0, len(entries))
	for _, entry := range entries {
		eidStr, slotStr, found := strings.Cut(entry.EIDSlt, ":")
		if !found {
			return nil, &ParseError{Tool: s.Name(), Context: "PD LIST",
				Err: fmt.Errorf("unexpected EID:Slt %q", entry.EIDSlt)}
		}

		eid, err1 := strconv.Atoi(strings.TrimSpace(eidStr))
		slot, err2 := strconv.Atoi(strings.TrimSpace(slotStr))
		if err1 != nil || err2 != nil {
			return nil, &ParseError{Tool: s.Name(), Context: "PD LIST",
				Err: fmt.Errorf("non-numeric EID:Slt %q", entry.EIDSlt)}
		}

		drive := &PhysicalDrive{
			Controller: cid,
			Enclosure:  eid,
			Slot:       slot,
			EIDSlt:     entry.EIDSlt,
			State:      entry.State,
			DriveGroup: decodeDG(entry.DG),
			Size:       strings.TrimSpace(entry.Size),
			SizeBytes:  utils.ParseSize(entry.Size),
			Interface:  entry.Intf,
			Medium:     entry.Med,
			Model:      strings.TrimSpace(entry.Model),
			Serial:     strings.TrimSpace(entry.SN),
		}

		// The overview list does not reliably carry serials; recover them
		// from the per-slot detail pass when available.
		if d, ok := details[[2]int{eid, slot}]; ok {
			utils.FillField(d.serial, &drive.Serial)
			utils.FillField(d.model, &drive.Model)
		}

		drives = append(drives, drive)
	}

	return drives, nil
}

type pdDetail struct {
	serial string
	model  string
}

var drivePathRe = regexp.MustCompile(`(?i)/e(\d+)/s(\d+)`)

// collectDetails reads /cX /eall /sall show all J once and maps serial and
// model onto (enclosure, slot). Detail recovery is best-effort: a failed
// detail pass degrades to the overview data instead of failing the scan.
func (s *Storcli) collectDetails(ctx context.Context, cid int) map[[2]int]pdDetail {
	details := make(map[[2]int]pdDetail)

	data, err := s.run(ctx, "/c"+strconv.Itoa(cid), "/eall", "/sall", "show", "all", "J")
	if err != nil {
		return details
	}

	rd, err := s.responseData(data, "detail")
	if err != nil {
		return details
	}

	for key, raw := range rd {
		m := drivePathRe.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		eid, _ := strconv.Atoi(m[1])
		slot, _ := strconv.Atoi(m[2])

		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err != nil {
			continue
		}

		serial, model := extractSerialAndModel(nested)
		if serial == "" && model == "" {
			continue
		}

		existing := details[[2]int{eid, slot}]
		utils.FillField(serial, &existing.serial)
		utils.FillField(model, &existing.model)
		details[[2]int{eid, slot}] = existing
	}

	return details
}

// extractSerialAndModel digs through the firmware-dependent detail layout:
// device-attribute blocks first, then any nested object carrying SN/Model
// keys.
func extractSerialAndModel(nested map[string]json.RawMessage) (string, string) {
	var serial, model string

	decode := func(raw json.RawMessage) {
		var kv map[string]any
		if err := json.Unmarshal(raw, &kv); err != nil {
			return
		}
		for _, key := range []string{"SN", "S/N", "Serial Number"} {
			if v, ok := kv[key].(string); ok {
				utils.FillField(strings.TrimSpace(v), &serial)
			}
		}
		for _, key := range []string{"Model Number", "Model", "MODEL"} {
			if v, ok := kv[key].(string); ok {
				utils.FillField(strings.TrimSpace(v), &model)
			}
		}
	}

	// Device attributes blocks take precedence.
	for key, raw := range nested {
		if strings.Contains(key, "Device attributes") {
			decode(raw)
		}
	}
	for _, raw := range nested {
		if serial != "" && model != "" {
			break
		}
		decode(raw)
	}

	return serial, model
}

func (s *Storcli) responseData(data []byte, what string) (map[string]json.RawMessage, error) {
	var js storJSON
	if err := json.Unmarshal(data, &js); err != nil {
		return nil, &ParseError{Tool: s.Name(), Context: what, Err: err}
	}
	if len(js.Controllers) == 0 || js.Controllers[0].ResponseData == nil {
		return nil, &ParseError{Tool: s.Name(), Context: what, Err: fmt.Errorf("missing Response Data")}
	}
	return js.Controllers[0].ResponseData, nil
}

// SetJBOD converts every drive on a controller to JBOD so the enclosure
// members become individually addressable. Firmware that does not support
// the command answers "command invalid"; that maps to ErrJBODUnsupported
// so callers can treat it as already-done.
func (s *Storcli) SetJBOD(ctx context.Context, cid int) error {
	name, full := execute.WithSudo(s.sudo, s.path, "/c"+strconv.Itoa(cid), "/eall", "/sall", "set", "jbod", "J")
	output := execute.CommandWithContext(ctx, name, full...)
	if output.Err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, output.Err)
	}

	if output.ExitCode == 0 {
		return nil
	}

	combined := strings.ToLower(string(output.Combined()))
	if strings.Contains(combined, "command invalid") || jbodUnsupported(output.Stdout) {
		return ErrJBODUnsupported
	}

	return fmt.Errorf("storcli set jbod on /c%d: exit %d: %s", cid, output.ExitCode,
		strings.TrimSpace(string(output.Stderr)))
}

func jbodUnsupported(stdout []byte) bool {
	var js storJSON
	if err := json.Unmarshal(stdout, &js); err != nil {
		return false
	}
	for _, ctrl := range js.Controllers {
		cs := ctrl.CommandStatus
		if cs == nil {
			continue
		}
		if strings.Contains(cs.Description, "Set Drive JBOD Failed") &&
			strings.Contains(strings.ToLower(cs.ErrMsg), "command invalid") {
			return true
		}
	}
	return false
}

func decodeDG(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return strconv.FormatFloat(asNumber, 'f', -1, 64)
	}

	return "Unknown"
}

func sortDrives(drives []*PhysicalDrive) {
	sort.Slice(drives, func(i, j int) bool {
		a, b := drives[i], drives[j]
		if a.Controller != b.Controller {
			return a.Controller < b.Controller
		}
		if a.Enclosure != b.Enclosure {
			return a.Enclosure < b.Enclosure
		}
		return a.Slot < b.Slot
	})
}
