package runner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/zenithax-cc/taotie/internal/store"
)

// fioJSON covers the slice of fio's JSON output the certificate cares
// about: bandwidth, IOPS and mean latency of the dominant direction.
type fioJSON struct {
	Jobs []*fioJob `json:"jobs"`
}

type fioJob struct {
	Read  *fioStats `json:"read"`
	Write *fioStats `json:"write"`
}

type fioStats struct {
	BW      float64 `json:"bw"`       // KiB/s
	BWBytes float64 `json:"bw_bytes"` // bytes/s, newer fio
	IOPS    float64 `json:"iops"`
	ClatNS  *fioLat `json:"clat_ns"`
	LatNS   *fioLat `json:"lat_ns"`
}

type fioLat struct {
	Mean float64 `json:"mean"`
}

// parseFio extracts bw_mb_s / iops / lat_ms. A stress test only counts as
// successful when the process exited cleanly and all three metrics are
// present, same rule the certificates were always generated under.
func parseFio(raw []byte, exitOK bool, metrics map[string]string) (store.Outcome, string) {
	var js fioJSON
	if err := json.Unmarshal(raw, &js); err != nil {
		return store.OutcomeFailed, fmt.Sprintf("fio output is not valid JSON: %v", err)
	}
	if len(js.Jobs) == 0 {
		return store.OutcomeFailed, "fio reported no jobs"
	}

	stats := chooseStats(js.Jobs[0])
	if stats == nil {
		return store.OutcomeFailed, "fio job carries no read/write stats"
	}

	var complete = true

	if bw := bandwidthMB(stats); bw > 0 {
		metrics["bw_mb_s"] = strconv.FormatFloat(bw, 'f', 2, 64)
	} else {
		complete = false
	}

	if stats.IOPS > 0 {
		metrics["iops"] = strconv.FormatFloat(stats.IOPS, 'f', 1, 64)
	} else {
		complete = false
	}

	if lat := latencyMS(stats); lat > 0 {
		metrics["lat_ms"] = strconv.FormatFloat(lat, 'f', 3, 64)
	} else {
		complete = false
	}

	if !exitOK {
		return store.OutcomeFailed, "fio exited with a failure code"
	}
	if !complete {
		return store.OutcomeFailed, "fio output missing bandwidth/iops/latency"
	}

	return store.OutcomeSuccess, ""
}

func chooseStats(job *fioJob) *fioStats {
	if job.Read != nil && (job.Read.BW > 0 || job.Read.BWBytes > 0) {
		return job.Read
	}
	if job.Write != nil && (job.Write.BW > 0 || job.Write.BWBytes > 0) {
		return job.Write
	}
	if job.Read != nil {
		return job.Read
	}
	return job.Write
}

func bandwidthMB(stats *fioStats) float64 {
	if stats.BWBytes > 0 {
		return stats.BWBytes / 1e6
	}
	if stats.BW > 0 {
		return stats.BW / 1024.0
	}
	return 0
}

func latencyMS(stats *fioStats) float64 {
	for _, lat := range []*fioLat{stats.ClatNS, stats.LatNS} {
		if lat != nil && lat.Mean > 0 {
			return lat.Mean / 1e6
		}
	}
	return 0
}

var badblocksRe = regexp.MustCompile(`Pass completed.*?(\d+) bad blocks found`)

// parseBadblocks records the bad-sector count. The run itself succeeds as
// long as badblocks completed; found sectors are a finding, not a tool
// failure.
func parseBadblocks(raw []byte, exitOK bool, metrics map[string]string) (store.Outcome, string) {
	if !exitOK {
		return store.OutcomeFailed, "badblocks exited with a failure code"
	}

	m := badblocksRe.FindSubmatch(raw)
	if m == nil {
		return store.OutcomeFailed, "badblocks output missing pass summary"
	}

	metrics["bad_blocks"] = string(m[1])
	return store.OutcomeSuccess, ""
}

// smartctlJSON is the subset of smartctl -j output recorded per query.
// Schema from smartmontools >= 7; unknown fields decode to zero values and
// are treated as absent.
type smartctlJSON struct {
	ModelName    string `json:"model_name"`
	SerialNumber string `json:"serial_number"`
	SmartStatus  *struct {
		Passed bool `json:"passed"`
	} `json:"smart_status"`
	Temperature *struct {
		Current int `json:"current"`
	} `json:"temperature"`
	PowerOnTime *struct {
		Hours int `json:"hours"`
	} `json:"power_on_time"`
}

func parseSmartctl(raw []byte, exitOK bool, metrics map[string]string) (store.Outcome, string) {
	var js smartctlJSON
	if err := json.Unmarshal(raw, &js); err != nil {
		return store.OutcomeFailed, fmt.Sprintf("smartctl output is not valid JSON: %v", err)
	}
	if js.SmartStatus == nil {
		return store.OutcomeFailed, "smartctl output missing smart_status"
	}

	metrics["smart_passed"] = strconv.FormatBool(js.SmartStatus.Passed)
	if js.ModelName != "" {
		metrics["model"] = js.ModelName
	}
	if js.SerialNumber != "" {
		metrics["serial"] = js.SerialNumber
	}
	if js.Temperature != nil {
		metrics["temperature_c"] = strconv.Itoa(js.Temperature.Current)
	}
	if js.PowerOnTime != nil {
		metrics["power_on_hours"] = strconv.Itoa(js.PowerOnTime.Hours)
	}

	// smartctl sets bits in its exit code for failing attributes; the
	// query itself still counts as long as the output parsed.
	_ = exitOK

	return store.OutcomeSuccess, ""
}

// parseExitOnly covers erase tools whose only machine-readable contract is
// the exit code.
func parseExitOnly(_ []byte, exitOK bool, _ map[string]string) (store.Outcome, string) {
	if !exitOK {
		return store.OutcomeFailed, "erase command exited with a failure code"
	}
	return store.OutcomeSuccess, ""
}
