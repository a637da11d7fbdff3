package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sdload/internal/app"
	"sdload/pkg/utils"
)

type ReadFlags struct {
	Address string
	Size    string
	OutPath string
	Trim    bool
}

var readFlags ReadFlags

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Dump device flash to a file",
	Long: `Read flash from the device into a local file.

The size is rounded up to a whole number of 512-byte sectors and the file
receives every sector read. Use --trim to cut the file back to --size.

Addresses are sector numbers. Sizes accept 0x hex and K, M, G suffixes.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDevice(); err != nil {
			return err
		}
		return validateReadFlags(&readFlags)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRead(&readFlags)
	},
}

func init() {
	rootCmd.AddCommand(readCmd)

	readCmd.Flags().StringVarP(&readFlags.Address, "address", "a", "0", "start sector")
	readCmd.Flags().StringVarP(&readFlags.Size, "size", "s", "", "number of bytes to read (required)")
	readCmd.Flags().StringVarP(&readFlags.OutPath, "out", "o", "", "output file (required)")
	readCmd.Flags().BoolVar(&readFlags.Trim, "trim", false, "truncate the output to --size")

	readCmd.MarkFlagRequired("size")
	readCmd.MarkFlagRequired("out")

	viper.BindPFlag("transfer.trim_output", readCmd.Flags().Lookup("trim"))
}

// validateReadFlags validates the read command flags
func validateReadFlags(flags *ReadFlags) error {
	if _, err := utils.ParseAddress(flags.Address); err != nil {
		return err
	}
	size, err := utils.ParseSize(flags.Size)
	if err != nil {
		return err
	}
	if size == 0 {
		return fmt.Errorf("size must be greater than 0")
	}
	return utils.ValidateOutputPath(flags.OutPath)
}

// runRead creates and runs the flash read
func runRead(flags *ReadFlags) error {
	ctx, cancel := createContext()
	defer cancel()

	address, _ := utils.ParseAddress(flags.Address)
	size, _ := utils.ParseSize(flags.Size)

	opts := &app.ReadOptions{
		Address: address,
		Size:    size,
		OutPath: flags.OutPath,
		Trim:    flags.Trim,
	}
	_, err := createApp().Read(ctx, opts)
	return err
}
