package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/urmzd/wallpad/pkg/ksx4506"
)

var sendRaw bool

var sendCmd = &cobra.Command{
	Use:   "send <address> <command> [data...]",
	Short: "Send one request and print the replies",
	Long: `Send builds a frame for address and command (hex) with optional hex data
bytes and prints every frame received from that address until the timeout.

With --raw the arguments are the complete frame in hex and are sent as is.

Examples:
  wallpad send 0E:11 01
  wallpad send 0E:11 41 01
  wallpad send --raw F7 0E 11 01 00 ...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().BoolVar(&sendRaw, "raw", false, "Arguments are a complete hex frame")
}

func parseHexArgs(args []string) ([]byte, error) {
	b, err := hex.DecodeString(strings.ReplaceAll(strings.Join(args, ""), ":", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

// buildRequest parses the send arguments into a packet.
func buildRequest(args []string, raw bool) (ksx4506.Packet, error) {
	if raw {
		frame, err := parseHexArgs(args)
		if err != nil {
			return ksx4506.Packet{}, err
		}
		return ksx4506.Decode(frame)
	}
	if len(args) < 2 {
		return ksx4506.Packet{}, fmt.Errorf("need an address and a command")
	}
	addr, err := ksx4506.ParseAddress(args[0])
	if err != nil {
		return ksx4506.Packet{}, err
	}
	cmd, err := parseHexArgs(args[1:2])
	if err != nil || len(cmd) != 1 {
		return ksx4506.Packet{}, fmt.Errorf("command must be one hex byte, got %q", args[1])
	}
	data, err := parseHexArgs(args[2:])
	if err != nil {
		return ksx4506.Packet{}, err
	}
	pkt := ksx4506.NewPacket(addr, ksx4506.Command(cmd[0]), data...)
	if _, err := pkt.Encode(); err != nil {
		return ksx4506.Packet{}, err
	}
	return pkt, nil
}

// replyFilter forwards only frames from one address.
type replyFilter struct {
	*printer
	addr ksx4506.Address
}

func (r *replyFilter) OnReceive(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, pkt := range r.parser.Feed(b) {
		if pkt.Command.IsResponse() && r.addr.Contains(pkt.Address) {
			r.out.PrintFrame(frameLine(now, "rx", pkt))
		}
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	pkt, err := buildRequest(args, sendRaw)
	if err != nil {
		return err
	}

	out := NewFormatter(viper.GetString("output"))
	f := &replyFilter{printer: newPrinter(out), addr: pkt.Address}
	proc, err := openStream(f, nil)
	if err != nil {
		return err
	}
	defer proc.StopStream()

	if err := proc.SendPacket(pkt); err != nil {
		return err
	}
	out.PrintFrame(frameLine(time.Now(), "tx", pkt))

	ctx, cancel := signalContext(viper.GetDuration("timeout"))
	defer cancel()
	select {
	case <-ctx.Done():
		return nil
	case err := <-f.errs:
		return err
	}
}
