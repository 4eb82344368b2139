package cmd

import (
	"fmt"
	"log"
	"strconv"

	"github.com/roffe/goobd/pkg/obd2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(readCmd)
}

var readCmd = &cobra.Command{
	Use:   "read <pid> ...",
	Short: "read live data PIDs",
	Args:  cobra.MinimumNArgs(1),
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

		timeout := queryTimeout(cmd)
		for _, pid := range pids {
			resp, err := sess.QueryPID(cmd.Context(), pid, timeout)
			if err != nil {
				return err
			}
			log.Printf("%s: %s", pidName(pid), resp.Value.String())
		}
		return nil
	},
}

func parsePIDs(args []string) ([]byte, error) {
	pids := make([]byte, 0, len(args))
	for _, arg := range args {
		pid, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("bad PID %q: %w", arg, err)
		}
		pids = append(pids, byte(pid))
	}
	return pids, nil
}

func pidName(pid byte) string {
	if def, ok := obd2.Lookup(pid); ok {
		return def.Name
	}
	return fmt.Sprintf("PID 0x%02X", pid)
}
