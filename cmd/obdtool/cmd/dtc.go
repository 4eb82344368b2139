package cmd

import (
	"log"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(dtcCmd)
	dtcCmd.AddCommand(dtcReadCmd)
	dtcCmd.AddCommand(dtcClearCmd)
}

var dtcCmd = &cobra.Command{
	Use:   "dtc",
	Short: "diagnostic trouble codes",
}

var dtcReadCmd = &cobra.Command{
	Use:   "read",
	Short: "read stored and pending trouble codes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, tr, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer tr.Close()

		ctx := cmd.Context()
		timeout := queryTimeout(cmd)
		stored, err := sess.ReadDTCs(ctx, timeout)
		if err != nil {
			return err
		}
		if len(stored) == 0 {
			log.Println("no stored trouble codes")
		}
		for _, code := range stored {
			log.Println("stored:", code.String())
		}

		pending, err := sess.PendingDTCs(ctx, timeout)
		if err != nil {
			return err
		}
		for _, code := range pending {
			log.Println("pending:", code.String())
		}
		return nil
	},
}

var dtcClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "clear trouble codes and freeze frames",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Println("clear stored trouble codes and readiness monitors?")
		if !yesNo() {
			return nil
		}
		sess, tr, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer tr.Close()

		if err := sess.ClearDTCs(cmd.Context(), queryTimeout(cmd)); err != nil {
			return err
		}
		log.Println("trouble codes cleared")
		return nil
	},
}

func yesNo() bool {
	prompt := promptui.Select{
		Label:    "[Yes/No]",
		HideHelp: true,
		Items:    []string{"Yes", "No"},
	}
	_, result, err := prompt.Run()
	if err != nil {
		log.Fatalf("Prompt failed %v\n", err)
	}
	return result == "Yes"
}
