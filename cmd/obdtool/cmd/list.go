package cmd

import (
	"log"

	"github.com/roffe/goobd"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list transports and serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Println("transports:")
		for _, info := range goobd.List() {
			serial := ""
			if info.RequiresSerialPort {
				serial = " (serial)"
			}
			log.Printf("  %s - %s%s", info.Name, info.Description, serial)
		}
		if _, err := goobd.PortInfo("*"); err != nil {
			log.Println(err)
		}
		return nil
	},
}
