package cmd

import (
	"log"
	"time"

	"github.com/avast/retry-go"
	"github.com/roffe/goobd"
	"github.com/roffe/goobd/pkg/obd2"
	"github.com/spf13/cobra"
)

// initTransport builds the transport from the persistent flags and opens
// it, retrying recoverable failures.
func initTransport(cmd *cobra.Command, filters ...uint32) (goobd.Transport, error) {
	ctx := cmd.Context()
	name, _ := cmd.Flags().GetString(flagTransport)
	port, _ := cmd.Flags().GetString(flagPort)
	baudrate, _ := cmd.Flags().GetInt(flagBaudrate)
	bitrate, _ := cmd.Flags().GetInt(flagBitrate)
	library, _ := cmd.Flags().GetString(flagLibrary)
	debug, _ := cmd.Flags().GetBool(flagDebug)

	cfg := &goobd.Config{
		Port:         port,
		PortBaudrate: baudrate,
		Bitrate:      uint32(bitrate),
		Library:      library,
		Filters:      filters,
		Debug:        debug,
		OnMessage: func(s string) {
			log.Println(s)
		},
		OnError: func(err error) {
			log.Println(err)
		},
	}

	tr, err := goobd.New(name, cfg)
	if err != nil {
		return nil, err
	}

	err = retry.Do(func() error {
		return tr.Open(ctx)
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("retry #%d: %v", n, err)
		}),
		retry.RetryIf(func(err error) bool {
			return goobd.IsRecoverable(err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// newSession opens a transport and wraps it in a diagnostic session
// addressed per the ecu flag.
func newSession(cmd *cobra.Command) (*obd2.Session, goobd.Transport, error) {
	tr, err := initTransport(cmd)
	if err != nil {
		return nil, nil, err
	}
	ecu, _ := cmd.Flags().GetInt(flagECU)
	opts := &obd2.Options{}
	if ecu >= 0 && ecu <= 7 {
		opts.RequestID = 0x7E0 + uint32(ecu)
	}
	sess, err := obd2.NewSession(tr, opts)
	if err != nil {
		tr.Close()
		return nil, nil, err
	}
	return sess, tr, nil
}

func queryTimeout(cmd *cobra.Command) time.Duration {
	d, _ := cmd.Flags().GetDuration(flagTimeout)
	if d <= 0 {
		d = time.Second
	}
	return d
}
