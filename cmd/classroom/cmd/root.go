package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/liveclass/classroom/internal/ui"
	"github.com/liveclass/classroom/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "classroom",
	Short: "Join a live classroom with peer-to-peer audio and video",
	Long: `classroom connects to a signaling server and joins a live class. Audio and
video travel directly between participants over WebRTC while the server keeps
polls, raised hands, mute state, chat and the shared whiteboard in sync.`,
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
