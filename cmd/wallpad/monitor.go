package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/urmzd/wallpad/pkg/capture"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/service"
	"github.com/urmzd/wallpad/pkg/transport"
)

var (
	monitorCapture  string
	monitorDuration time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print decoded bus traffic",
	Long: `Monitor opens the bus read-only and prints every frame it decodes.
Press Ctrl+C to stop.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorCapture, "capture", "", "Record raw traffic to a capture file")
	monitorCmd.Flags().DurationVar(&monitorDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
}

// printer decodes received bytes and prints each packet.
type printer struct {
	mu     sync.Mutex
	parser *ksx4506.FrameParser
	out    *Formatter
	errs   chan error
}

func newPrinter(out *Formatter) *printer {
	return &printer{parser: ksx4506.NewFrameParser(), out: out, errs: make(chan error, 1)}
}

func (p *printer) OnReceive(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for _, pkt := range p.parser.Feed(b) {
		p.out.PrintFrame(frameLine(now, "rx", pkt))
	}
}

func (p *printer) OnTransportError(err error) {
	select {
	case p.errs <- err:
	default:
	}
}

func (p *printer) dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parser.Dropped()
}

// signalContext is cancelled on SIGINT/SIGTERM or after d when d > 0.
func signalContext(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	if d > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), d)
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// openStream starts a stream processor on the configured bus with c
// attached. rec, when not nil, records the traffic.
func openStream(c transport.Client, rec *capture.Recorder) (*transport.StreamProcessor, error) {
	cfg, err := busConfig()
	if err != nil {
		return nil, err
	}
	session, err := service.Session(cfg)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		session = rec.Wrap(session)
	}
	proc := transport.NewStreamProcessor(transport.DefaultConfig())
	proc.AddClient(c)
	if err := proc.StartStream(session); err != nil {
		proc.RemoveClient(c)
		return nil, err
	}
	log.Info().Str("session", session.Name()).Msg("Bus opened")
	return proc, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	var rec *capture.Recorder
	if monitorCapture != "" {
		var err error
		rec, err = capture.Create(monitorCapture, viper.GetString("port"))
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close capture")
			}
			log.Info().Int("frames", rec.Frames()).Str("file", monitorCapture).Msg("Capture saved")
		}()
	}

	p := newPrinter(NewFormatter(viper.GetString("output")))
	proc, err := openStream(p, rec)
	if err != nil {
		return err
	}
	defer proc.StopStream()

	ctx, cancel := signalContext(monitorDuration)
	defer cancel()

	select {
	case <-ctx.Done():
	case err = <-p.errs:
	}
	if n := p.dropped(); n > 0 {
		log.Warn().Int("bytes", n).Msg("Discarded bytes outside valid frames")
	}
	return err
}
