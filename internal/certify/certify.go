// Package certify assembles the evidence payload certificate renderers
// consume: the device record plus the ordered sequence of its operation
// results. It reads from the core and never writes back into it.
package certify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/darkit/machineid"

	"github.com/zenithax-cc/taotie/internal/inventory"
	"github.com/zenithax-cc/taotie/internal/store"
	"github.com/zenithax-cc/taotie/pkg/utils"
)

// Payload is one device's complete audit trail, stamped with the station
// identity so a certificate can be traced back to the host that produced
// it.
type Payload struct {
	StationID   string                   `json:"station_id"`
	Hostname    string                   `json:"hostname"`
	GeneratedAt time.Time                `json:"generated_at"`
	Device      *inventory.Device        `json:"device"`
	SizeHuman   string                   `json:"size_human,omitempty"`
	Results     []*store.OperationResult `json:"results"`
}

// Build collects the payload for one device from the result store.
func Build(dev *inventory.Device, db *store.Store) (*Payload, error) {
	results, err := db.ByDevice(dev.ID)
	if err != nil {
		return nil, fmt.Errorf("load results for %s: %w", dev.ID, err)
	}

	stationID, err := machineid.ID()
	if err != nil {
		// A missing machine-id file must not block certificate export;
		// the field stays empty and the renderer flags it.
		stationID = ""
	}

	hostname, _ := os.Hostname()

	return &Payload{
		StationID:   stationID,
		Hostname:    hostname,
		GeneratedAt: time.Now(),
		Device:      dev,
		SizeHuman:   utils.HumanSize(dev.SizeBytes),
		Results:     results,
	}, nil
}

// WriteJSON renders the payload into dir and returns the file path.
func (p *Payload) WriteJSON(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create certificate directory: %w", err)
	}

	name := fmt.Sprintf("certificate_%s_%s.json",
		sanitize(p.Device.ID), p.GeneratedAt.Format("2006-01-02_15-04-05"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal certificate payload: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write certificate %s: %w", path, err)
	}

	return path, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
