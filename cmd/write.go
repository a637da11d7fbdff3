package cmd

import (
	"github.com/spf13/cobra"

	"sdload/internal/app"
	"sdload/pkg/utils"
)

type WriteFlags struct {
	Address  string
	InPath   string
	Unframed bool
	Reset    bool
}

var writeFlags WriteFlags

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write a file into device flash",
	Long: `Write the whole of a local file into flash starting at a sector.

The file is sent as-is in chunks no larger than the device accepts. A final
chunk shorter than a sector is sent without padding.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDevice(); err != nil {
			return err
		}
		return validateWriteFlags(&writeFlags)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWrite(&writeFlags)
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)

	writeCmd.Flags().StringVarP(&writeFlags.Address, "address", "a", "0", "start sector")
	writeCmd.Flags().StringVarP(&writeFlags.InPath, "in", "i", "", "image to write (required)")
	writeCmd.Flags().BoolVar(&writeFlags.Unframed, "unframed", false, "use the unframed stream mode (not supported)")
	writeCmd.Flags().BoolVar(&writeFlags.Reset, "reset", false, "reboot the device after a successful write")

	writeCmd.MarkFlagRequired("in")
}

// validateWriteFlags validates the write command flags
func validateWriteFlags(flags *WriteFlags) error {
	if _, err := utils.ParseAddress(flags.Address); err != nil {
		return err
	}
	return utils.ValidateInputPath(flags.InPath)
}

// runWrite creates and runs the flash write
func runWrite(flags *WriteFlags) error {
	ctx, cancel := createContext()
	defer cancel()

	address, _ := utils.ParseAddress(flags.Address)

	opts := &app.WriteOptions{
		Address:  address,
		InPath:   flags.InPath,
		Unframed: flags.Unframed,
		Reset:    flags.Reset,
	}
	_, err := createApp().Write(ctx, opts)
	return err
}
