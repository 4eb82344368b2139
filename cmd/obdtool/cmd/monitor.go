package cmd

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	monitorCmd.Flags().Duration("interval", 500*time.Millisecond, "poll interval")
	rootCmd.AddCommand(monitorCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor <pid> ...",
	Short: "poll live data PIDs until interrupted",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pids, err := parsePIDs(args)
		if err != nil {
			return err
		}
		interval, _ := cmd.Flags().GetDuration("interval")
		sess, tr, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer tr.Close()

		timeout := queryTimeout(cmd)
		errg, ctx := errgroup.WithContext(cmd.Context())
		errg.Go(func() error {
			tick := time.NewTicker(interval)
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-tick.C:
					fields := make([]string, 0, len(pids))
					for _, pid := range pids {
						resp, err := sess.QueryPID(ctx, pid, timeout)
						if err != nil {
							fields = append(fields, pidName(pid)+": "+err.Error())
							continue
						}
						fields = append(fields, pidName(pid)+": "+resp.Value.String())
					}
					log.Println(strings.Join(fields, " | "))
				}
			}
		})
		if err := errg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
