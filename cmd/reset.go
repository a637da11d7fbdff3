package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reboot the device out of download mode",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return requireDevice()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := createContext()
		defer cancel()

		if err := createApp().Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Device reset")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
