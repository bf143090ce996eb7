package runner

import (
	"fmt"
	"time"

	"github.com/zenithax-cc/taotie/internal/config"
	"github.com/zenithax-cc/taotie/internal/inventory"
	"github.com/zenithax-cc/taotie/internal/store"
)

// Erase standards and their human labels. The label is what certificates
// print, so it stays stable even if a tool flag changes.
var standardLabels = map[string]string{
	"zero-fill":             "Zero Fill / 1-Pass",
	"dod-3pass":             "DoD 3-Pass",
	"dod-7pass":             "DoD 7-Pass",
	"secure-erase":          "Secure Erase",
	"secure-erase-enhanced": "Secure Erase Enhanced",
}

// fioPresets are the stress-test workloads. {device} is substituted with
// the resolved block path.
var fioPresets = map[string][]string{
	"quick-read":  {"fio", "--name=quickread", "--filename={device}", "--rw=read", "--bs=1M", "--size=1G", "--iodepth=8"},
	"quick-write": {"fio", "--name=quickwrite", "--filename={device}", "--rw=write", "--bs=1M", "--size=1G", "--iodepth=8"},
	"random":      {"fio", "--name=random", "--filename={device}", "--rw=randrw", "--bs=4k", "--size=1G", "--iodepth=32"},
	"full":        {"fio", "--name=full", "--filename={device}", "--rw=write", "--bs=1M", "--iodepth=16"},
}

// writingPresets mark the stress workloads that destroy data.
var writingPresets = map[string]bool{
	"quick-write": true,
	"random":      true,
	"full":        true,
}

var nwipeMethods = map[string]string{
	"zero-fill": "--method=zero",
	"dod-3pass": "--method=dod3",
	"dod-7pass": "--method=dod7",
}

// hdparm ATA security erase uses a throwaway password that the erase
// itself invalidates.
const atapass = "PASS"

type command []string

// plan is the fully-resolved invocation for one operation: the command
// sequence plus the metric seeds the parser merges its findings into.
type plan struct {
	commands []command
	metrics  map[string]string
}

type toolSpec struct {
	// destructive operations require EraseAllowed and a resolved path.
	destructive func(req Request) bool
	// expertOnly operations additionally require the expert PIN.
	expertOnly func(req Request) bool
	// timeout of 0 means no artificial cap (secure erase must be allowed
	// to run as long as the device needs).
	timeout func(cfg *config.Config) time.Duration
	build   func(dev *inventory.Device, req Request) (*plan, error)
	parse   parseFunc
}

type parseFunc func(raw []byte, exitOK bool, metrics map[string]string) (outcome store.Outcome, reason string)

func never(Request) bool  { return false }
func always(Request) bool { return true }

func noTimeout(*config.Config) time.Duration { return 0 }

var tools = map[store.Kind]*toolSpec{
	store.KindSmartQuery: {
		destructive: never,
		expertOnly:  never,
		timeout:     func(*config.Config) time.Duration { return 2 * time.Minute },
		build:       buildSmartQuery,
		parse:       parseSmartctl,
	},
	store.KindSurfaceTest: {
		destructive: func(req Request) bool { return req.Preset == "destructive" },
		expertOnly:  func(req Request) bool { return req.Preset == "destructive" },
		timeout:     func(cfg *config.Config) time.Duration { return cfg.SurfaceTimeout.Std() },
		build:       buildSurfaceTest,
		parse:       parseBadblocks,
	},
	store.KindStressTest: {
		destructive: func(req Request) bool { return writingPresets[req.Preset] },
		expertOnly:  never,
		timeout:     func(cfg *config.Config) time.Duration { return cfg.StressTimeout.Std() },
		build:       buildStressTest,
		parse:       parseFio,
	},
	store.KindSecureErase: {
		destructive: always,
		expertOnly:  never,
		timeout:     noTimeout,
		build:       buildSecureErase,
		parse:       parseExitOnly,
	},
	store.KindLegacyWipe: {
		destructive: always,
		expertOnly:  func(req Request) bool { return req.Preset != "zero-fill" },
		timeout:     noTimeout,
		build:       buildLegacyWipe,
		parse:       parseExitOnly,
	},
}

func buildSmartQuery(dev *inventory.Device, _ Request) (*plan, error) {
	return &plan{
		commands: []command{{"smartctl", "-a", "-j", dev.BlockPath}},
		metrics:  map[string]string{},
	}, nil
}

func buildSurfaceTest(dev *inventory.Device, req Request) (*plan, error) {
	mode := req.Preset
	if mode == "" {
		mode = "read-only"
	}

	var args command
	var method string
	switch mode {
	case "read-only":
		args = command{"badblocks", "-sv", dev.BlockPath}
		method = "Badblocks Read-Only"
	case "destructive":
		args = command{"badblocks", "-wsv", dev.BlockPath}
		method = "Badblocks Destructive"
	default:
		return nil, fmt.Errorf("unknown surface test mode %q", mode)
	}

	return &plan{
		commands: []command{args},
		metrics:  map[string]string{"method": method},
	}, nil
}

func buildStressTest(dev *inventory.Device, req Request) (*plan, error) {
	preset := req.Preset
	if preset == "" {
		preset = "quick-read"
	}

	tmpl, ok := fioPresets[preset]
	if !ok {
		return nil, fmt.Errorf("unknown fio preset %q", preset)
	}

	args := make(command, 0, len(tmpl)+1)
	for _, a := range tmpl {
		if a == "--filename={device}" {
			a = "--filename=" + dev.BlockPath
		}
		args = append(args, a)
	}
	args = append(args, "--output-format=json")

	return &plan{
		commands: []command{args},
		metrics:  map[string]string{"preset": preset},
	}, nil
}

// buildSecureErase maps an erase standard onto the device's native purge
// command: ATA security erase through hdparm, or NVMe format with the
// matching secure-erase-setting.
func buildSecureErase(dev *inventory.Device, req Request) (*plan, error) {
	standard := req.Preset
	if standard == "" {
		standard = "secure-erase"
	}

	label, ok := standardLabels[standard]
	if !ok {
		return nil, fmt.Errorf("unknown erase standard %q", standard)
	}

	metrics := map[string]string{
		"method":   label,
		"standard": standard,
	}

	if isNVMe(dev.BlockPath) {
		ses := map[string]string{
			"zero-fill":             "--ses=0",
			"secure-erase":          "--ses=1",
			"secure-erase-enhanced": "--ses=2",
		}
		flag, ok := ses[standard]
		if !ok {
			return nil, fmt.Errorf("erase standard %q is not supported for NVMe", standard)
		}
		return &plan{
			commands: []command{{"nvme", "format", dev.BlockPath, flag}},
			metrics:  metrics,
		}, nil
	}

	var eraseFlag string
	switch standard {
	case "zero-fill", "secure-erase":
		eraseFlag = "--security-erase"
	case "secure-erase-enhanced":
		eraseFlag = "--security-erase-enhanced"
	default:
		return nil, fmt.Errorf("erase standard %q is not supported for ATA", standard)
	}

	return &plan{
		commands: []command{
			{"hdparm", "--user-master", "u", "--security-set-pass", atapass, dev.BlockPath},
			{"hdparm", eraseFlag, atapass, dev.BlockPath},
		},
		metrics: metrics,
	}, nil
}

func buildLegacyWipe(dev *inventory.Device, req Request) (*plan, error) {
	standard := req.Preset
	if standard == "" {
		standard = "zero-fill"
	}

	method, ok := nwipeMethods[standard]
	if !ok {
		return nil, fmt.Errorf("unknown wipe standard %q", standard)
	}

	return &plan{
		commands: []command{{"nwipe", method, "--autonuke", "--nogui", "--sync", "--verify=last", dev.BlockPath}},
		metrics: map[string]string{
			"method":   standardLabels[standard],
			"standard": standard,
			"tool":     "nwipe",
		},
	}, nil
}

func isNVMe(path string) bool {
	return len(path) > len("/dev/nvme") && path[:len("/dev/nvme")] == "/dev/nvme"
}
