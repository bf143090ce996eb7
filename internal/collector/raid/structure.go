package raid

import (
	"encoding/json"
	"fmt"
)

// Controller 控制器概要信息
type Controller struct {
	ID     int    `json:"id"`               // 控制器编号
	Model  string `json:"model,omitempty"`  // 型号
	Serial string `json:"serial,omitempty"` // 序列号
}

// PhysicalDrive 控制器后面的一块物理硬盘
type PhysicalDrive struct {
	Controller int    `json:"controller"`          // 控制器编号
	Enclosure  int    `json:"enclosure"`           // 背板编号
	Slot       int    `json:"slot"`                // 插槽编号
	EIDSlt     string `json:"eid_slt,omitempty"`   // 原始 EID:Slt
	State      string `json:"state,omitempty"`     // 硬盘状态
	DriveGroup string `json:"drive_group,omitempty"` // 硬盘组，"-" 表示未配置
	Size       string `json:"size,omitempty"`      // 工具上报的容量
	SizeBytes  uint64 `json:"size_bytes"`          // 换算后的字节数
	Interface  string `json:"interface,omitempty"` // SATA/SAS
	Medium     string `json:"medium,omitempty"`    // HDD/SSD
	Model      string `json:"model,omitempty"`     // 型号
	Serial     string `json:"serial,omitempty"`    // 序列号，部分固件不上报
}

// Unconfigured reports whether the drive is exposed as an individually
// addressable JBOD/unconfigured-good member rather than a virtual-drive
// component. Only unconfigured drives may become erase-eligible.
func (d *PhysicalDrive) Unconfigured() bool {
	switch d.State {
	case "JBOD", "UGood", "UBad", "Ready":
		return true
	}
	return d.DriveGroup == "-" || d.DriveGroup == ""
}

// Location renders the storcli-style /cX/eY/sZ coordinate.
func (d *PhysicalDrive) Location() string {
	return fmt.Sprintf("/c%d/e%d/s%d", d.Controller, d.Enclosure, d.Slot)
}

// Snapshot is the result of one adapter collection cycle.
type Snapshot struct {
	Source      string           `json:"source"`
	Controllers []*Controller    `json:"controllers,omitempty"`
	Drives      []*PhysicalDrive `json:"drives,omitempty"`
}

// storcli JSON envelope. Response Data stays raw because its key set varies
// per command and per firmware; each caller decodes only what it expects.
type storJSON struct {
	Controllers []*storController `json:"Controllers"`
}

type storController struct {
	CommandStatus *commandStatus             `json:"Command Status"`
	ResponseData  map[string]json.RawMessage `json:"Response Data"`
}

type commandStatus struct {
	Controller  int    `json:"Controller"`
	Status      string `json:"Status"`
	Description string `json:"Description"`
	ErrMsg      string `json:"ErrMsg"`
}

type systemOverview struct {
	Ctl    int    `json:"Ctl"`
	Model  string `json:"Model"`
	Serial string `json:"SN"`
}

type storBasics struct {
	Controller int    `json:"Controller"`
	Model      string `json:"Model"`
	Serial     string `json:"Serial Number"`
}

type pdEntry struct {
	EIDSlt string          `json:"EID:Slt"`
	DID    int             `json:"DID"`
	State  string          `json:"State"`
	DG     json.RawMessage `json:"DG"` // 数字或 "-"，固件差异
	Size   string          `json:"Size"`
	Intf   string          `json:"Intf"`
	Med    string          `json:"Med"`
	Model  string          `json:"Model"`
	SN     string          `json:"SN"`
}
