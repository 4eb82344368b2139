package cmd

import (
	"log"

	"github.com/roffe/goobd/pkg/obd2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(broadcastCmd)
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <pid>",
	Short: "query one PID on the functional address and show every ECU's answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pids, err := parsePIDs(args)
		if err != nil {
			return err
		}
		sess, tr, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer tr.Close()

		req := obd2.NewRequest(obd2.ServiceCurrentData, pids[0])
		resps, err := sess.Broadcast(cmd.Context(), req, queryTimeout(cmd))
		if err != nil {
			return err
		}
		for _, resp := range resps {
			log.Printf("0x%03X %s: %s", resp.Source, pidName(pids[0]), resp.Value.String())
		}
		return nil
	},
}
