package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sdload/internal/app"
	"sdload/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sdload",
	Short: "sdload - streaming download flash tool",
	Long: `sdload reads and writes raw device flash over a serial link using the
streaming download protocol.

Flash is addressed in 512-byte sectors. Transfers are split into chunks sized
from the limits the device advertises during the hello handshake.

Usage:
  Dump flash:   sdload read  --port /dev/ttyUSB0 --address 0x0 --size 4M --out dump.bin
  Flash image:  sdload write --port /dev/ttyUSB0 --address 0x400 --in boot.img
  Device info:  sdload info  --port /dev/ttyUSB0
  Reboot:       sdload reset --port /dev/ttyUSB0
  List ports:   sdload ports`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initConfig()

		var err error
		cfg, err = config.Load(viper.GetViper())
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return setupLogging(cfg.Log)
	},
}

func init() {
	config.SetDefaults(viper.GetViper())

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sdload.yaml)")
	rootCmd.PersistentFlags().StringP("port", "p", "", "serial port of the device")
	rootCmd.PersistentFlags().Int("baud", 115200, "serial baud rate")
	rootCmd.PersistentFlags().Duration("timeout", 5*time.Second, "serial read timeout")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")

	viper.BindPFlag("serial.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("serial.baud", rootCmd.PersistentFlags().Lookup("baud"))
	viper.BindPFlag("serial.read_timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("log-json"))
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			logrus.WithError(err).Warn("Could not find home directory")
			return
		}

		// Search config in home directory with name ".sdload" (without extension)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sdload")
	}

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		logrus.WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}
}

func setupLogging(lc config.LogConfig) error {
	level, err := lc.ParseLevel()
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	if lc.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// createContext creates a context that cancels on interrupt signals. The
// running transfer stops after its current chunk.
func createContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, stopping after the current chunk...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// createApp wires the flash application for the configured port.
func createApp() *app.FlashApp {
	return app.NewFlashApp(cfg, app.SerialDialer(cfg), os.Stderr)
}

// requireDevice checks that a port was given for commands that open one.
func requireDevice() error {
	return cfg.ValidateDevice()
}
