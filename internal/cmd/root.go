package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Rogue-56/pinch/internal/ui"
	"github.com/Rogue-56/pinch/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pinch",
	Short: "Group video calls and screen sharing from the terminal",
	Long: `pinch joins a room on a pinch relay and opens a WebRTC call with everyone
in it. Every participant connects directly to every other one; the relay only
forwards signaling and chat.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
