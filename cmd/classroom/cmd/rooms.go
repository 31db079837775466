package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/liveclass/classroom/internal/classroom"
	"github.com/liveclass/classroom/internal/config"
	"github.com/liveclass/classroom/internal/ui"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List active classes on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{Domain: flagServer})
		if err != nil {
			return classroom.NewError("load config", err)
		}

		stopSpinner := ui.RunSpinner("Fetching rooms...")
		defer stopSpinner()

		var rooms []ui.RoomStat
		if err := getJSON(cmd.Context(), cfg.HTTPURL+"/rooms", &rooms); err != nil {
			return classroom.NewError("list rooms", err)
		}
		stopSpinner()

		fmt.Println(ui.RoomsTable(rooms, time.Now()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roomsCmd)
	roomsCmd.Flags().StringVarP(&flagServer, "server", "d", "", "Signaling server host[:port]")
}
