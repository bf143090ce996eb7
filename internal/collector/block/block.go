// Package block enumerates raw block devices through lsblk. A failed scan
// degrades to an empty snapshot: direct-block devices become invisible for
// that cycle instead of aborting the whole reconciliation.
package block

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zenithax-cc/taotie/pkg/execute"
)

// ErrScan marks an unavailable or malformed block-device listing.
var ErrScan = errors.New("block device scan failed")

const lsblkColumns = "NAME,PATH,TYPE,SIZE,MODEL,SERIAL,TRAN,RM,HOTPLUG,MOUNTPOINTS"

var skipPrefixes = []string{"loop", "md", "zram", "dm-", "sr"}

type Scanner struct {
	lsblkPath string
}

func New() *Scanner {
	return &Scanner{lsblkPath: "lsblk"}
}

// Collect runs one scan cycle. The returned snapshot is sorted by path so
// repeated scans of the same hardware compare equal.
func (s *Scanner) Collect(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	output := execute.CommandWithContext(ctx, s.lsblkPath, "-J", "-b", "-o", lsblkColumns)
	if err := output.AsError(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScan, err)
	}

	var js lsblkJSON
	if err := json.Unmarshal(output.Stdout, &js); err != nil {
		return nil, fmt.Errorf("%w: unmarshal lsblk output: %v", ErrScan, err)
	}

	snap := &Snapshot{Devices: make([]*BlockDevice, 0, len(js.BlockDevices))}
	for _, dev := range js.BlockDevices {
		if dev.Type != "disk" || skipDevice(dev.Name) {
			continue
		}

		path := dev.Path
		if path == "" {
			path = "/dev/" + dev.Name
		}

		mounts := make(map[string]struct{})
		collectMountpoints(dev, mounts)

		snap.Devices = append(snap.Devices, &BlockDevice{
			Name:        dev.Name,
			Path:        path,
			SizeBytes:   uint64(dev.Size),
			Model:       strings.TrimSpace(dev.Model),
			Serial:      strings.TrimSpace(dev.Serial),
			Transport:   strings.ToLower(strings.TrimSpace(dev.Transport)),
			Removable:   bool(dev.Removable),
			Hotplug:     bool(dev.Hotplug),
			Mountpoints: sortedKeys(mounts),
		})
	}

	sort.Slice(snap.Devices, func(i, j int) bool {
		return snap.Devices[i].Path < snap.Devices[j].Path
	})

	return snap, nil
}

func skipDevice(name string) bool {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// collectMountpoints walks a device and its partitions. Both the modern
// MOUNTPOINTS array and the legacy singular MOUNTPOINT field count.
func collectMountpoints(dev *lsblkDevice, into map[string]struct{}) {
	if dev.Mountpoint != "" {
		into[dev.Mountpoint] = struct{}{}
	}
	for _, mp := range dev.Mountlist {
		if mp != "" {
			into[mp] = struct{}{}
		}
	}
	for _, child := range dev.Children {
		collectMountpoints(child, into)
	}
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
