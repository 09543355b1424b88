package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/urmzd/wallpad/pkg/db"
	"github.com/urmzd/wallpad/pkg/transport"
)

var (
	cfgFile   string
	transp    string
	port      string
	baud      int
	mode      string
	timeout   time.Duration
	outputFmt string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "wallpad",
	Short: "Diagnostics for KS X 4506 home-network buses",
	Long: `wallpad talks directly to a KS X 4506 wallpad bus over a serial adapter
or a TCP serial bridge.

Examples:
  # Print decoded bus traffic and record it
  wallpad monitor --port /dev/ttyUSB0 --capture bus.cbor

  # Ask light 0E:11 for its status
  wallpad send 0E:11 01

  # Decode a recorded capture
  wallpad replay bus.cbor -o json

  # Check that two devices behave
  wallpad check 0E:11 12:01`,

	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if viper.GetBool("verbose") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	def := db.DefaultBusConfig()
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wallpad.yaml)")
	rootCmd.PersistentFlags().StringVar(&transp, "transport", def.Transport, "Bus transport (serial, tcp)")
	rootCmd.PersistentFlags().StringVarP(&port, "port", "p", def.Port, "Serial device or host:port of a TCP bridge")
	rootCmd.PersistentFlags().IntVarP(&baud, "baud", "b", def.BaudRate, "Serial baud rate")
	rootCmd.PersistentFlags().StringVarP(&mode, "mode", "m", def.Mode, "Bus side (master, slave)")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Second, "Reply timeout")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	for _, name := range []string{"transport", "port", "baud", "mode", "timeout", "output", "verbose"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".wallpad")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("WALLPAD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debug().Str("file", viper.ConfigFileUsed()).Msg("Using config file")
	}
}

// busConfig builds a bus link from flags, environment and config file.
func busConfig() (*db.BusConfig, error) {
	cfg := db.DefaultBusConfig()
	cfg.Transport = viper.GetString("transport")
	cfg.Port = viper.GetString("port")
	cfg.BaudRate = viper.GetInt("baud")
	cfg.Mode = viper.GetString("mode")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		f := NewFormatter(viper.GetString("output"))
		if f.format == FormatJSON {
			return f.PrintJSON(ports)
		}
		for _, p := range ports {
			f.Println(p)
		}
		return nil
	},
}

var (
	version = "dev"
	commit  = "none"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wallpad %s (%s)\n", version, commit)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
