package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/roffe/goobd"
	"github.com/spf13/cobra"
)

func init() {
	sniffCmd.Flags().UintSlice("id", nil, "only show these CAN identifiers")
	rootCmd.AddCommand(sniffCmd)
}

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "dump raw bus traffic",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, _ := cmd.Flags().GetUintSlice("id")
		filters := make([]uint32, 0, len(ids))
		for _, id := range ids {
			filters = append(filters, uint32(id))
		}
		tr, err := initTransport(cmd, filters...)
		if err != nil {
			return err
		}
		defer tr.Close()

		ctx := cmd.Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			frame, err := tr.Receive(300 * time.Millisecond)
			if err != nil {
				if errors.Is(err, goobd.ErrTimeout) {
					continue
				}
				return err
			}
			fmt.Println(frame.ColorString())
		}
	},
}
