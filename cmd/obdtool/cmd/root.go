package cmd

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/roffe/goobd/pkg/obd2"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "obdtool",
	Short:        "OBD-II diagnostics over CAN",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString(flagPIDFile)
		if path == "" {
			return nil
		}
		n, err := obd2.LoadDefinitions(path)
		if err != nil {
			return err
		}
		log.Printf("loaded %d PID definitions from %s", n, path)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

const (
	flagTransport = "transport"
	flagPort      = "port"
	flagBaudrate  = "baudrate"
	flagBitrate   = "bitrate"
	flagLibrary   = "library"
	flagECU       = "ecu"
	flagTimeout   = "timeout"
	flagDebug     = "debug"
	flagPIDFile   = "pid-file"
)

func init() {
	log.SetFlags(log.Lshortfile | log.LstdFlags)

	pf := rootCmd.PersistentFlags()
	pf.StringP(flagTransport, "t", "SLCan", "transport to use, see list")
	pf.StringP(flagPort, "p", "*", "serial port or CAN interface, * = print available")
	pf.IntP(flagBaudrate, "b", 115200, "serial port baudrate")
	pf.Int(flagBitrate, 500000, "CAN bus bitrate")
	pf.String(flagLibrary, "", "J2534 shared library path")
	pf.IntP(flagECU, "e", -1, "ECU to address, 0-7, -1 = broadcast")
	pf.DurationP(flagTimeout, "T", time.Second, "query timeout")
	pf.BoolP(flagDebug, "d", false, "debug mode")
	pf.String(flagPIDFile, "", "extra PID definitions (yaml)")
}
