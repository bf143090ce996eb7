package inventory

import (
	"fmt"

	"github.com/zenithax-cc/taotie/internal/store"
)

// Origin records where a device was discovered, which drives the
// reconciliation and eligibility rules.
type Origin string

const (
	OriginDirectBlock  Origin = "DirectBlock"
	OriginRaidAttached Origin = "RaidAttached"
)

// RaidRef locates a drive behind a controller.
type RaidRef struct {
	Controller int    `json:"controller"`
	Enclosure  int    `json:"enclosure"`
	Slot       int    `json:"slot"`
	Source     string `json:"source"` // storcli / sas3ircu
}

func (r *RaidRef) String() string {
	return fmt.Sprintf("%s:/c%d/e%d/s%d", r.Source, r.Controller, r.Enclosure, r.Slot)
}

// Device is the canonical identity of one physical storage unit for the
// lifetime of a scan session. Instances are rebuilt on every scan and are
// read-only once published.
type Device struct {
	ID string `json:"id"`

	// BlockPath is the current OS device node. Empty when a RAID-attached
	// drive could not be mapped to a block device; such drives stay visible
	// but cannot be targeted until a rescan resolves them.
	BlockPath string   `json:"block_path,omitempty"`
	RaidRef   *RaidRef `json:"raid_ref,omitempty"`

	Model         string `json:"model,omitempty"`
	Serial        string `json:"serial,omitempty"`
	SizeBytes     uint64 `json:"size_bytes"`
	Transport     string `json:"transport,omitempty"`
	InterfaceKind string `json:"interface_kind,omitempty"`
	State         string `json:"state,omitempty"`

	Origin Origin `json:"origin"`

	Mountpoints []string `json:"mountpoints,omitempty"`
	Removable   bool     `json:"removable,omitempty"`
	Hotplug     bool     `json:"hotplug,omitempty"`

	// Unconfigured is true for JBOD/unconfigured-good enclosure members.
	// Virtual-drive members are inventoried but never erase-eligible.
	Unconfigured bool `json:"unconfigured,omitempty"`

	// IsSystemDisk and EraseAllowed are computed by the classifier on
	// every reconciliation pass, never hand-set.
	IsSystemDisk bool `json:"is_system_disk"`
	EraseAllowed bool `json:"erase_allowed"`

	LastResult *store.OperationResult `json:"last_result,omitempty"`
}

// Resolved reports whether the device currently has an addressable block
// path.
func (d *Device) Resolved() bool {
	return d.BlockPath != ""
}
