// Package config loads the station configuration. The config is read once
// at startup and passed by reference into the components that need it, so
// tests can inject fixtures instead of touching the filesystem.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// ExpertPin gates high-risk operations (multi-pass wipes, destructive
	// surface tests). It never makes an ineligible device eligible.
	ExpertPin string `yaml:"expert_pin"`

	// Controller CLI locations. An empty or missing binary disables that
	// adapter without error.
	StorcliPath  string `yaml:"storcli_path"`
	Sas3ircuPath string `yaml:"sas3ircu_path"`

	// ProtectedMountPoints are treated as system-critical in addition to
	// the auto-detected root/boot set.
	ProtectedMountPoints []string `yaml:"protected_mount_points"`

	UseSudo         bool `yaml:"use_sudo"`
	ShowSystemDisks bool `yaml:"show_system_disks"`

	// SurfaceTimeout and StressTimeout cap surface/stress test runtime.
	// Secure-erase jobs deliberately carry no artificial cap.
	SurfaceTimeout Duration `yaml:"surface_timeout"`
	StressTimeout  Duration `yaml:"stress_timeout"`

	ResultsDB string `yaml:"results_db"`
	CertDir   string `yaml:"cert_dir"`

	// RescanSchedule is a cron expression for the watch loop.
	RescanSchedule string `yaml:"rescan_schedule"`
}

// Duration is a time.Duration that unmarshals from strings like "30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".taotie")

	return &Config{
		ExpertPin:      "1969",
		StorcliPath:    "/usr/local/bin/storcli",
		Sas3ircuPath:   "/usr/local/bin/sas3ircu",
		UseSudo:        true,
		SurfaceTimeout: Duration(4 * time.Hour),
		StressTimeout:  Duration(30 * time.Minute),
		ResultsDB:      filepath.Join(base, "results.db"),
		CertDir:        filepath.Join(base, "certificates"),
		RescanSchedule: "*/5 * * * *",
	}
}

// Load reads the YAML file at path on top of the defaults. A missing file
// is not an error: the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// DefaultPath is where Load looks when no --config flag is given.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".taotie", "config.yaml")
}
