package runner

import (
	"testing"

	"github.com/zenithax-cc/taotie/internal/store"
)

const fioOutput = `{
  "fio version": "fio-3.28",
  "jobs": [
    {
      "jobname": "quickread",
      "read": {
        "bw_bytes": 524288000,
        "bw": 512000,
        "iops": 125000.5,
        "clat_ns": {"mean": 250000.0}
      },
      "write": {"bw_bytes": 0, "bw": 0, "iops": 0}
    }
  ]
}`

func TestParseFio(t *testing.T) {
	metrics := map[string]string{}
	outcome, reason := parseFio([]byte(fioOutput), true, metrics)

	if outcome != store.OutcomeSuccess {
		t.Fatalf("outcome = %s: %s", outcome, reason)
	}
	if metrics["bw_mb_s"] != "524.29" {
		t.Errorf("bw_mb_s = %q", metrics["bw_mb_s"])
	}
	if metrics["iops"] != "125000.5" {
		t.Errorf("iops = %q", metrics["iops"])
	}
	if metrics["lat_ms"] != "0.250" {
		t.Errorf("lat_ms = %q", metrics["lat_ms"])
	}
}

func TestParseFioLegacyBandwidth(t *testing.T) {
	// Older fio reports only bw in KiB/s.
	raw := `{"jobs": [{"write": {"bw": 102400, "iops": 400, "lat_ns": {"mean": 1000000}}}]}`

	metrics := map[string]string{}
	outcome, reason := parseFio([]byte(raw), true, metrics)
	if outcome != store.OutcomeSuccess {
		t.Fatalf("outcome = %s: %s", outcome, reason)
	}
	if metrics["bw_mb_s"] != "100.00" {
		t.Errorf("bw_mb_s = %q", metrics["bw_mb_s"])
	}
	if metrics["lat_ms"] != "1.000" {
		t.Errorf("lat_ms = %q", metrics["lat_ms"])
	}
}

func TestParseFioFailures(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		exitOK bool
	}{
		{"not json", "fio: device busy", true},
		{"no jobs", `{"jobs": []}`, true},
		{"missing metrics", `{"jobs": [{"read": {"bw": 0, "iops": 0}}]}`, true},
		{"bad exit", fioOutput, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, reason := parseFio([]byte(tt.raw), tt.exitOK, map[string]string{})
			if outcome != store.OutcomeFailed {
				t.Errorf("outcome = %s", outcome)
			}
			if reason == "" {
				t.Error("failure needs a reason")
			}
		})
	}
}

func TestParseBadblocks(t *testing.T) {
	clean := `Checking blocks 0 to 1953514583
Checking for bad blocks (read-only test): done
Pass completed, 0 bad blocks found. (0/0/0 errors)
`
	metrics := map[string]string{}
	outcome, _ := parseBadblocks([]byte(clean), true, metrics)
	if outcome != store.OutcomeSuccess {
		t.Fatalf("outcome = %s", outcome)
	}
	if metrics["bad_blocks"] != "0" {
		t.Errorf("bad_blocks = %q", metrics["bad_blocks"])
	}

	// Found sectors are a finding about the drive, not a tool failure.
	worn := "Pass completed, 17 bad blocks found. (17/0/0 errors)\n"
	metrics = map[string]string{}
	outcome, _ = parseBadblocks([]byte(worn), true, metrics)
	if outcome != store.OutcomeSuccess {
		t.Errorf("outcome = %s", outcome)
	}
	if metrics["bad_blocks"] != "17" {
		t.Errorf("bad_blocks = %q", metrics["bad_blocks"])
	}

	if outcome, _ := parseBadblocks([]byte(clean), false, map[string]string{}); outcome != store.OutcomeFailed {
		t.Error("bad exit code must fail")
	}
	if outcome, _ := parseBadblocks([]byte("interrupted"), true, map[string]string{}); outcome != store.OutcomeFailed {
		t.Error("missing pass summary must fail")
	}
}

const smartctlOutput = `{
  "model_name": "HGST HUS726T2TALA604",
  "serial_number": "WMC6N0K8XYZ1",
  "smart_status": {"passed": true},
  "temperature": {"current": 34},
  "power_on_time": {"hours": 26201}
}`

func TestParseSmartctl(t *testing.T) {
	metrics := map[string]string{}
	outcome, reason := parseSmartctl([]byte(smartctlOutput), true, metrics)
	if outcome != store.OutcomeSuccess {
		t.Fatalf("outcome = %s: %s", outcome, reason)
	}

	want := map[string]string{
		"smart_passed":   "true",
		"model":          "HGST HUS726T2TALA604",
		"serial":         "WMC6N0K8XYZ1",
		"temperature_c":  "34",
		"power_on_hours": "26201",
	}
	for k, v := range want {
		if metrics[k] != v {
			t.Errorf("metrics[%q] = %q, want %q", k, metrics[k], v)
		}
	}

	// Attribute-failure exit bits do not invalidate a parsed query.
	if outcome, _ := parseSmartctl([]byte(smartctlOutput), false, map[string]string{}); outcome != store.OutcomeSuccess {
		t.Error("nonzero smartctl exit with valid output should still succeed")
	}

	if outcome, _ := parseSmartctl([]byte(`{"model_name": "x"}`), true, map[string]string{}); outcome != store.OutcomeFailed {
		t.Error("missing smart_status must fail")
	}
}

func TestParseExitOnly(t *testing.T) {
	if outcome, _ := parseExitOnly(nil, true, nil); outcome != store.OutcomeSuccess {
		t.Error("clean exit should succeed")
	}
	if outcome, reason := parseExitOnly(nil, false, nil); outcome != store.OutcomeFailed || reason == "" {
		t.Error("failure exit should fail with a reason")
	}
}
