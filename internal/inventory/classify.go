package inventory

import (
	"crypto/subtle"
	"strings"
)

// systemMountpoints always count as system-critical, before any configured
// additions.
var systemMountpoints = []string{"/", "/boot", "/boot/efi", "/usr", "/var", "/home"}

// onboardTransports mark direct-attached buses whose disks are treated as
// system disks unconditionally. A refurbishment host never erases its own
// mainboard-attached storage.
var onboardTransports = map[string]bool{
	"sata": true,
	"ata":  true,
}

// Classifier stamps IsSystemDisk and EraseAllowed. Verdicts are recomputed
// fresh on every pass; the same physical device can be repurposed between
// runs, so caching a verdict across scans would be a defect.
type Classifier struct {
	protected []string
	expertPin string
}

func NewClassifier(protectedMounts []string, expertPin string) *Classifier {
	return &Classifier{
		protected: protectedMounts,
		expertPin: expertPin,
	}
}

// Classify applies the two safety invariants:
//
//	IsSystemDisk == true  => EraseAllowed == false, no override path
//	EraseAllowed == true  => Origin == RaidAttached && !IsSystemDisk
func (c *Classifier) Classify(d *Device) {
	d.IsSystemDisk = c.isSystemDisk(d)
	d.EraseAllowed = d.Origin == OriginRaidAttached && !d.IsSystemDisk && d.Unconfigured
}

func (c *Classifier) isSystemDisk(d *Device) bool {
	for _, mp := range d.Mountpoints {
		if c.isProtectedMountpoint(mp) {
			return true
		}
	}

	if d.Origin != OriginDirectBlock {
		return false
	}

	transport := strings.ToLower(d.Transport)
	if onboardTransports[transport] {
		return true
	}

	// Internal non-hotplug NVMe counts as mainboard storage.
	if transport == "nvme" && !d.Removable && !d.Hotplug {
		return true
	}

	return false
}

func (c *Classifier) isProtectedMountpoint(mp string) bool {
	for _, sys := range append(append([]string{}, systemMountpoints...), c.protected...) {
		if mp == sys {
			return true
		}
		// Root matches exactly only; its prefix form would swallow every
		// absolute mountpoint.
		if sys != "/" && strings.HasPrefix(mp, strings.TrimSuffix(sys, "/")+"/") {
			return true
		}
	}
	return false
}

// VerifyPin checks the expert-mode PIN. The gate authorizes high-risk
// operation kinds on already-eligible devices; it never promotes an
// ineligible device.
func (c *Classifier) VerifyPin(pin string) bool {
	if c.expertPin == "" || pin == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(pin), []byte(c.expertPin)) == 1
}
