package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/urmzd/wallpad/pkg/capture"
	"github.com/urmzd/wallpad/pkg/ksx4506"
)

var replayFilter string

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Decode a capture file",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayFilter, "address", "", "Only show frames for this address (group addresses match members)")
}

// decodeCapture reads every record of r into frame lines. Frames that fail
// to decode keep their error.
func decodeCapture(r *capture.Reader, filter *ksx4506.Address) ([]FrameLine, error) {
	var out []FrameLine
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		pkt, err := rec.Packet()
		if err != nil {
			out = append(out, FrameLine{Time: rec.T, Dir: rec.Dir.String(), Data: fmt.Sprintf("% X", rec.Frame), Error: err.Error()})
			continue
		}
		if filter != nil && !filter.Contains(pkt.Address) {
			continue
		}
		out = append(out, frameLine(rec.T, rec.Dir.String(), pkt))
	}
}

func runReplay(cmd *cobra.Command, args []string) error {
	var filter *ksx4506.Address
	if replayFilter != "" {
		a, err := ksx4506.ParseAddress(replayFilter)
		if err != nil {
			return err
		}
		filter = &a
	}

	r, err := capture.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	log.Debug().
		Str("format", h.Format).
		Str("port", h.Port).
		Time("started", h.Started).
		Msg("Capture opened")

	lines, err := decodeCapture(r, filter)
	if err != nil {
		log.Warn().Err(err).Int("frames", len(lines)).Msg("Capture truncated")
	}

	f := NewFormatter(viper.GetString("output"))
	if f.format == FormatJSON {
		return f.PrintJSON(lines)
	}
	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, l.row())
	}
	f.PrintTable(frameHeaders, rows)
	return nil
}
