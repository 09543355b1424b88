package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/urmzd/wallpad/pkg/conformance"
	"github.com/urmzd/wallpad/pkg/device"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/service"
	"github.com/urmzd/wallpad/pkg/transport"
)

var checkLenient bool

var checkCmd = &cobra.Command{
	Use:   "check <address>...",
	Short: "Run behaviour checks against devices",
	Long: `Check acts as bus master, registers each address and runs the built-in
checks for its class: characteristic learning, status polling and a control
round trip that restores the previous state.

The command exits non-zero when any check fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkLenient, "lenient", false, "Accept requests outside the advertised capability masks")
}

// checkNetwork registers addrs on a master network that does not poll on its
// own, so only the checks drive traffic.
func checkNetwork(proc *transport.StreamProcessor, addrs []ksx4506.Address) (*device.Network, []device.HomeDevice, error) {
	cfg := device.DefaultNetworkConfig()
	cfg.PollInterval = 0
	cfg.Codec.LenientMasks = checkLenient
	n := device.NewNetwork(cfg, proc, nil)
	devs := make([]device.HomeDevice, 0, len(addrs))
	for _, a := range addrs {
		d, err := n.AddDevice(a, "")
		if err != nil {
			return nil, nil, err
		}
		devs = append(devs, d)
	}
	return n, devs, nil
}

type checkRow struct {
	Device   string `json:"device"`
	Check    string `json:"check"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

func checkRows(results []conformance.Result) []checkRow {
	rows := make([]checkRow, 0, len(results))
	for _, r := range results {
		row := checkRow{
			Device:   r.Device,
			Check:    r.Check,
			Status:   r.Status.String(),
			Duration: r.Duration.Round(time.Millisecond).String(),
		}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

func runCheck(cmd *cobra.Command, args []string) error {
	addrs := make([]ksx4506.Address, 0, len(args))
	for _, s := range args {
		a, err := ksx4506.ParseAddress(s)
		if err != nil {
			return err
		}
		addrs = append(addrs, a)
	}

	link, err := busConfig()
	if err != nil {
		return err
	}
	session, err := service.Session(link)
	if err != nil {
		return err
	}

	n, devs, err := checkNetwork(transport.NewStreamProcessor(transport.DefaultConfig()), addrs)
	if err != nil {
		return err
	}
	defer n.Close()
	if err := n.Start(session); err != nil {
		return err
	}

	ctx, cancel := signalContext(0)
	defer cancel()
	results := runChecks(ctx, devs, viper.GetDuration("timeout"))

	f := NewFormatter(viper.GetString("output"))
	rows := checkRows(results)
	if f.format == FormatJSON {
		if err := f.PrintJSON(rows); err != nil {
			return err
		}
	} else {
		table := make([][]string, 0, len(rows))
		for _, r := range rows {
			table = append(table, []string{r.Device, r.Check, r.Status, r.Duration, r.Error})
		}
		f.PrintTable([]string{"DEVICE", "CHECK", "STATUS", "TIME", "ERROR"}, table)
	}

	passed, failed, skipped := conformance.Summary(results)
	log.Info().Int("passed", passed).Int("failed", failed).Int("skipped", skipped).Msg("Checks finished")
	if failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	return nil
}

// runChecks runs the default registry with each check bounded by perCheck.
func runChecks(ctx context.Context, devs []device.HomeDevice, perCheck time.Duration) []conformance.Result {
	reg := conformance.DefaultRegistry()
	var out []conformance.Result
	for _, d := range devs {
		for _, c := range reg.Checks(d.Address().Class) {
			if ctx.Err() != nil {
				return out
			}
			single := conformance.NewRegistry()
			_ = single.Register(d.Address().Class, c)
			cctx, cancel := context.WithTimeout(ctx, perCheck)
			out = append(out, single.Run(cctx, d)...)
			cancel()
		}
	}
	return out
}
