package inventory

import (
	"sort"
	"strings"

	"github.com/zenithax-cc/taotie/internal/collector/block"
	"github.com/zenithax-cc/taotie/internal/collector/raid"
)

// sizeTolerance bounds the relative difference allowed when matching a
// controller-reported capacity against lsblk's byte-exact size.
const sizeTolerance = 0.01

// Reconcile merges the block-device snapshot and the RAID-adapter snapshots
// into canonical devices. It is deterministic and idempotent: the same
// snapshots always yield the same device set and the same resolution
// decisions.
//
// Resolution prefers exact serial matches. Without a serial on either side
// it falls back to (model, size) restricted to still-unmatched block
// devices, and leaves ambiguous matches unresolved rather than guessing.
func Reconcile(blocks *block.Snapshot, raids []*raid.Snapshot, cl *Classifier) []*Device {
	var blockDevs []*block.BlockDevice
	if blocks != nil {
		blockDevs = blocks.Devices
	}

	claimed := make(map[string]bool, len(blockDevs))
	devices := make([]*Device, 0, len(blockDevs)+8)

	for _, snap := range raids {
		if snap == nil {
			continue
		}
		for _, drive := range snap.Drives {
			match := resolveDrive(drive, blockDevs, claimed)

			dev := &Device{
				RaidRef: &RaidRef{
					Controller: drive.Controller,
					Enclosure:  drive.Enclosure,
					Slot:       drive.Slot,
					Source:     snap.Source,
				},
				Model:         drive.Model,
				Serial:        drive.Serial,
				SizeBytes:     drive.SizeBytes,
				InterfaceKind: drive.Interface,
				Transport:     strings.ToLower(drive.Interface),
				State:         drive.State,
				Origin:        OriginRaidAttached,
				Unconfigured:  drive.Unconfigured(),
			}

			if match != nil {
				claimed[match.Path] = true
				dev.BlockPath = match.Path
				dev.SizeBytes = match.SizeBytes
				dev.Mountpoints = match.Mountpoints
				dev.Removable = match.Removable
				dev.Hotplug = match.Hotplug
				if match.Transport != "" {
					dev.Transport = match.Transport
				}
				if dev.Serial == "" {
					dev.Serial = match.Serial
				}
				if dev.Model == "" {
					dev.Model = match.Model
				}
			}

			dev.ID = deviceID(dev)
			devices = append(devices, dev)
		}
	}

	for _, bd := range blockDevs {
		if claimed[bd.Path] {
			continue
		}

		dev := &Device{
			BlockPath:   bd.Path,
			Model:       bd.Model,
			Serial:      bd.Serial,
			SizeBytes:   bd.SizeBytes,
			Transport:   bd.Transport,
			Origin:      OriginDirectBlock,
			Mountpoints: bd.Mountpoints,
			Removable:   bd.Removable,
			Hotplug:     bd.Hotplug,
		}
		dev.ID = deviceID(dev)
		devices = append(devices, dev)
	}

	for _, dev := range devices {
		cl.Classify(dev)
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})

	return devices
}

// resolveDrive maps one controller drive onto a block device, or nil when
// no unambiguous mapping exists.
func resolveDrive(drive *raid.PhysicalDrive, blockDevs []*block.BlockDevice, claimed map[string]bool) *block.BlockDevice {
	serial := strings.TrimSpace(drive.Serial)
	if serial != "" && !strings.EqualFold(serial, "unknown") {
		var candidates []*block.BlockDevice
		for _, bd := range blockDevs {
			if !claimed[bd.Path] && bd.Serial == serial {
				candidates = append(candidates, bd)
			}
		}
		// Duplicate serials are pathological; the largest device wins,
		// matching what certificates have historically recorded.
		return pickLargest(candidates)
	}

	if drive.Model == "" || drive.SizeBytes == 0 {
		return nil
	}

	var candidates []*block.BlockDevice
	for _, bd := range blockDevs {
		if claimed[bd.Path] || bd.Model != drive.Model {
			continue
		}
		if sizesMatch(bd.SizeBytes, drive.SizeBytes) {
			candidates = append(candidates, bd)
		}
	}

	// Ambiguity stays unresolved; a wrong path here would point a
	// destructive command at somebody else's drive.
	if len(candidates) != 1 {
		return nil
	}

	return candidates[0]
}

func pickLargest(candidates []*block.BlockDevice) *block.BlockDevice {
	var largest *block.BlockDevice
	for _, bd := range candidates {
		if largest == nil || bd.SizeBytes > largest.SizeBytes ||
			(bd.SizeBytes == largest.SizeBytes && bd.Path < largest.Path) {
			largest = bd
		}
	}
	return largest
}

func sizesMatch(a, b uint64) bool {
	if a == 0 || b == 0 {
		return false
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return float64(hi-lo)/float64(hi) <= sizeTolerance
}

// deviceID derives a stable identifier for the scan session: serial when
// available, else the block path, else the controller coordinate.
func deviceID(d *Device) string {
	if d.Serial != "" {
		return d.Serial
	}
	if d.BlockPath != "" {
		return d.BlockPath
	}
	return d.RaidRef.String()
}
