package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(vinCmd)
}

var vinCmd = &cobra.Command{
	Use:   "vin",
	Short: "read the vehicle identification number",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, tr, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer tr.Close()

		vin, err := sess.VIN(cmd.Context(), queryTimeout(cmd))
		if err != nil {
			return err
		}
		log.Println("VIN:", vin)
		return nil
	},
}
