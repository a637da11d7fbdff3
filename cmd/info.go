package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sdload/pkg/utils"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Negotiate with the device and show its parameters",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return requireDevice()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := createContext()
		defer cancel()

		info, err := createApp().Info(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Protocol version:    %d (compatible %d)\n", info.Version, info.CompatibleVersion)
		fmt.Fprintf(out, "Flash ID:            %s\n", info.FlashID)
		fmt.Fprintf(out, "Base flash address:  0x%08X\n", info.BaseFlashAddress)
		fmt.Fprintf(out, "Max block size:      %s\n", utils.FormatFileSize(int64(info.MaxPreferredBlockSize)))
		fmt.Fprintf(out, "Window size:         %d\n", info.WindowSize)
		fmt.Fprintf(out, "Sectors:             %d\n", len(info.SectorSizes))
		fmt.Fprintf(out, "Feature bits:        0x%02X\n", info.FeatureBits)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
