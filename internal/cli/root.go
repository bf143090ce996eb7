// Package cli implements the taotie command-line interface. The CLI is a
// thin shell over the inventory manager, the orchestrator and the result
// store; presentation beyond JSON stays out of the core.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zenithax-cc/taotie/internal/config"
	"github.com/zenithax-cc/taotie/internal/inventory"
	"github.com/zenithax-cc/taotie/internal/runner"
	"github.com/zenithax-cc/taotie/internal/store"
)

var configPath string

type app struct {
	cfg *config.Config
	inv *inventory.Manager
	db  *store.Store
	orc *runner.Orchestrator
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.ResultsDB)
	if err != nil {
		return nil, err
	}

	inv := inventory.NewManager(cfg)

	return &app{
		cfg: cfg,
		inv: inv,
		db:  db,
		orc: runner.New(cfg, inv, db),
	}, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

var rootCmd = &cobra.Command{
	Use:   "taotie",
	Short: "Storage inventory and erase-safety engine for wipe stations",
	Long: `taotie inventories the storage devices attached to a host, including
drives behind hardware RAID controllers, classifies each device as erasable
or protected, and supervises diagnostic and erase tools against the
erasable subset while recording verifiable evidence of every run.

Direct-attached system disks are never erase-eligible; only verified
RAID/JBOD enclosure members can be targeted by destructive operations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the station config file")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(jbodCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(certCmd)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
