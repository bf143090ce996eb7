package block

import (
	"bytes"
	"strconv"
)

// lsblkJSON mirrors `lsblk -J -b -o ...` output. Only the fields the
// reconciler needs are decoded; anything else the tool prints is ignored.
type lsblkJSON struct {
	BlockDevices []*lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Name       string         `json:"name"`
	Path       string         `json:"path"`
	Type       string         `json:"type"`
	Size       flexUint       `json:"size"`
	Model      string         `json:"model"`
	Serial     string         `json:"serial"`
	Transport  string         `json:"tran"`
	Removable  flexBool       `json:"rm"`
	Hotplug    flexBool       `json:"hotplug"`
	Mountpoint string         `json:"mountpoint"`
	Mountlist  []string       `json:"mountpoints"`
	Children   []*lsblkDevice `json:"children"`
}

// flexBool tolerates the lsblk version drift between boolean and "0"/"1"
// string renderings of RM/HOTPLUG.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(bytes.Trim(data, `"`)) {
	case "true", "1":
		*b = true
	default:
		*b = false
	}
	return nil
}

// flexUint tolerates SIZE printed as a number or a quoted number.
type flexUint uint64

func (u *flexUint) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	if s == "" || s == "null" {
		*u = 0
		return nil
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		*u = 0
		return nil
	}
	*u = flexUint(v)
	return nil
}

// BlockDevice is one raw disk as the OS sees it.
type BlockDevice struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	SizeBytes   uint64   `json:"size_bytes"`
	Model       string   `json:"model,omitempty"`
	Serial      string   `json:"serial,omitempty"`
	Transport   string   `json:"transport,omitempty"`
	Removable   bool     `json:"removable"`
	Hotplug     bool     `json:"hotplug"`
	Mountpoints []string `json:"mountpoints,omitempty"`
}

// Snapshot is the result of one block-device scan cycle.
type Snapshot struct {
	Devices []*BlockDevice `json:"devices"`
}
