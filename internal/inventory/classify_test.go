package inventory

import "testing"

func TestClassifySystemMountpoints(t *testing.T) {
	cl := NewClassifier([]string{"/srv/images"}, "1969")

	tests := []struct {
		name   string
		mounts []string
		system bool
	}{
		{"root", []string{"/"}, true},
		{"boot efi", []string{"/boot/efi"}, true},
		{"nested under var", []string{"/var/lib/docker"}, true},
		{"configured extra", []string{"/srv/images"}, true},
		{"nested under configured", []string{"/srv/images/archive"}, true},
		{"unrelated data mount", []string{"/mnt/scratch"}, false},
		{"auto-mounted removable", []string{"/media/usb"}, false},
		{"unmounted", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &Device{
				Origin:       OriginRaidAttached,
				Unconfigured: true,
				Mountpoints:  tt.mounts,
			}
			cl.Classify(dev)

			if dev.IsSystemDisk != tt.system {
				t.Errorf("IsSystemDisk = %t, want %t", dev.IsSystemDisk, tt.system)
			}
			if dev.EraseAllowed == tt.system {
				t.Errorf("EraseAllowed = %t with IsSystemDisk = %t", dev.EraseAllowed, dev.IsSystemDisk)
			}
		})
	}
}

func TestClassifyOnboardTransport(t *testing.T) {
	cl := testClassifier()

	direct := &Device{Origin: OriginDirectBlock, Transport: "sata"}
	cl.Classify(direct)
	if !direct.IsSystemDisk {
		t.Error("direct-attached SATA disk must be a system disk")
	}

	// The same transport behind a controller is just a JBOD member; the
	// onboard rule only applies to direct-block provenance.
	attached := &Device{Origin: OriginRaidAttached, Transport: "sata", Unconfigured: true}
	cl.Classify(attached)
	if attached.IsSystemDisk {
		t.Error("SATA drive behind a controller is not onboard storage")
	}
	if !attached.EraseAllowed {
		t.Error("unconfigured controller-attached drive should be eligible")
	}
}

func TestClassifyInternalNVMe(t *testing.T) {
	cl := testClassifier()

	internal := &Device{Origin: OriginDirectBlock, Transport: "nvme"}
	cl.Classify(internal)
	if !internal.IsSystemDisk {
		t.Error("non-hotplug NVMe must be a system disk")
	}

	hotplug := &Device{Origin: OriginDirectBlock, Transport: "nvme", Hotplug: true}
	cl.Classify(hotplug)
	if hotplug.IsSystemDisk {
		t.Error("hotplug NVMe (U.2 bay) is not mainboard storage")
	}
	if hotplug.EraseAllowed {
		t.Error("direct-block device is never erase-eligible regardless of protection")
	}
}

func TestClassifyRecomputes(t *testing.T) {
	cl := testClassifier()
	dev := &Device{Origin: OriginRaidAttached, Unconfigured: true, Mountpoints: []string{"/"}}

	cl.Classify(dev)
	if dev.EraseAllowed {
		t.Fatal("mounted root must block eligibility")
	}

	// Same physical device after the OS released it: verdict flips on the
	// next pass, nothing is cached.
	dev.Mountpoints = nil
	cl.Classify(dev)
	if !dev.EraseAllowed {
		t.Error("eligibility not recomputed after mountpoints cleared")
	}
}

func TestVerifyPin(t *testing.T) {
	cl := NewClassifier(nil, "1969")

	if !cl.VerifyPin("1969") {
		t.Error("correct pin rejected")
	}
	if cl.VerifyPin("0000") {
		t.Error("wrong pin accepted")
	}
	if cl.VerifyPin("") {
		t.Error("empty pin accepted")
	}

	unset := NewClassifier(nil, "")
	if unset.VerifyPin("") || unset.VerifyPin("1969") {
		t.Error("unset station pin must reject everything")
	}
}
