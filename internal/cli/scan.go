package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zenithax-cc/taotie/internal/collector/raid"
	"github.com/zenithax-cc/taotie/internal/inventory"
)

var scanAll bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan attached storage and print the classified inventory",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		view, err := a.inv.Scan(cmd.Context())
		if err != nil {
			return err
		}

		return printJSON(filterView(view, a.cfg.ShowSystemDisks || scanAll))
	},
}

// filterView hides protected system disks from the default listing. The
// devices still exist in the inventory; an operator who needs to see them
// flips show_system_disks or passes --all.
func filterView(view *inventory.View, showSystem bool) *inventory.View {
	if showSystem {
		return view
	}

	filtered := &inventory.View{
		Warnings:  view.Warnings,
		ScannedAt: view.ScannedAt,
	}
	for _, dev := range view.Devices {
		if !dev.IsSystemDisk {
			filtered.Devices = append(filtered.Devices, dev)
		}
	}
	return filtered
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rescan on the configured schedule and print each cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		a.inv.Subscribe(func(view *inventory.View) {
			if err := printJSON(filterView(view, a.cfg.ShowSystemDisks || scanAll)); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
		})

		if _, err := a.inv.Scan(cmd.Context()); err != nil {
			return err
		}
		if err := a.inv.StartRescan(a.cfg.RescanSchedule); err != nil {
			return err
		}
		defer a.inv.StopRescan()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

var jbodController int

var jbodCmd = &cobra.Command{
	Use:   "jbod",
	Short: "Enable JBOD mode on a MegaRAID controller",
	Long: `Enable JBOD personality via storcli so unconfigured drives surface as
individual block devices. Controllers without JBOD support are reported
as unsupported, not as failures.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		sc := raid.NewStorcli(a.cfg.StorcliPath, a.cfg.UseSudo)

		err = sc.SetJBOD(ctx, jbodController)
		switch {
		case errors.Is(err, raid.ErrJBODUnsupported):
			fmt.Printf("controller %d does not support JBOD mode\n", jbodController)
			return nil
		case err != nil:
			return err
		}

		fmt.Printf("JBOD enabled on controller %d; rescanning\n", jbodController)
		view, err := a.inv.Scan(ctx)
		if err != nil {
			return err
		}
		return printJSON(filterView(view, a.cfg.ShowSystemDisks))
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Include protected system disks in the listing")
	watchCmd.Flags().BoolVar(&scanAll, "all", false, "Include protected system disks in the listing")
	jbodCmd.Flags().IntVarP(&jbodController, "controller", "c", 0, "Controller index")
}
