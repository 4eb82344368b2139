package cmd

import (
	"fmt"
	"log"

	"github.com/roffe/goobd/pkg/bar"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "scan the supported PIDs and read them all",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, tr, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer tr.Close()

		ctx := cmd.Context()
		timeout := queryTimeout(cmd)
		pids, err := sess.SupportedPIDs(ctx, timeout)
		if err != nil {
			return err
		}
		log.Printf("ECU reports %d PIDs", len(pids))

		pb := bar.New(len(pids), "scanning")
		lines := make([]string, 0, len(pids))
		for _, pid := range pids {
			resp, err := sess.QueryPID(ctx, pid, timeout)
			pb.Add(1)
			if err != nil {
				lines = append(lines, fmt.Sprintf("%s: %v", pidName(pid), err))
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s", pidName(pid), resp.Value.String()))
		}
		pb.Finish()
		fmt.Println()
		for _, line := range lines {
			log.Println(line)
		}
		return nil
	},
}
