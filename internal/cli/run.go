package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zenithax-cc/taotie/internal/certify"
	"github.com/zenithax-cc/taotie/internal/runner"
	"github.com/zenithax-cc/taotie/internal/store"
)

var (
	runKind   string
	runPreset string
	runPin    string
)

// kindAliases maps the flag spellings onto operation kinds.
var kindAliases = map[string]store.Kind{
	"smart-query":  store.KindSmartQuery,
	"surface-test": store.KindSurfaceTest,
	"stress-test":  store.KindStressTest,
	"secure-erase": store.KindSecureErase,
	"legacy-wipe":  store.KindLegacyWipe,
}

var runCmd = &cobra.Command{
	Use:   "run <device-id>",
	Short: "Run a diagnostic or erase operation against one device",
	Long: `Run an operation against a device from the current inventory and wait
for it to finish. The device is re-scanned and re-classified immediately
before anything starts; destructive kinds are refused unless the device
is erase-eligible at that moment.

Kinds: smart-query, surface-test, stress-test, secure-erase, legacy-wipe.
Presets select the workload or erase standard within a kind, for example
--preset dod-3pass with legacy-wipe, or --preset quick-read with
stress-test. Ctrl-C aborts the run and terminates the tool process.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		kind, ok := kindAliases[runKind]
		if !ok {
			return fmt.Errorf("unknown kind %q", runKind)
		}

		deviceID := args[0]
		handle, err := a.orc.Start(ctx, runner.Request{
			DeviceID: deviceID,
			Kind:     kind,
			Preset:   runPreset,
			Pin:      runPin,
		})
		if err != nil {
			return err
		}

		go func() {
			<-ctx.Done()
			_ = a.orc.Cancel(deviceID, "interrupted by operator")
		}()

		result := handle.Wait()
		if err := printJSON(result); err != nil {
			return err
		}
		if result.Outcome != store.OutcomeSuccess {
			return fmt.Errorf("operation %s: %s", result.Outcome, result.Error)
		}
		return nil
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results <device-id>",
	Short: "Print all recorded operation results for a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		results, err := a.db.ByDevice(args[0])
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

var certCmd = &cobra.Command{
	Use:   "cert <device-id>",
	Short: "Export the evidence certificate for a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		dev, err := a.inv.Fresh(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		payload, err := certify.Build(dev, a.db)
		if err != nil {
			return err
		}

		path, err := payload.WriteJSON(a.cfg.CertDir)
		if err != nil {
			return err
		}

		fmt.Println(path)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runKind, "kind", "k", "smart-query", "Operation kind")
	runCmd.Flags().StringVarP(&runPreset, "preset", "p", "", "Workload preset or erase standard")
	runCmd.Flags().StringVar(&runPin, "pin", "", "Expert-mode pin for high-risk presets")
}
