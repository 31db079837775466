package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/liveclass/classroom/internal/classroom"
	"github.com/liveclass/classroom/internal/config"
	"github.com/liveclass/classroom/internal/media"
	"github.com/liveclass/classroom/internal/mesh"
	"github.com/liveclass/classroom/internal/roomkey"
	"github.com/liveclass/classroom/internal/ui"
)

var (
	flagUser       string
	flagName       string
	flagInstructor bool
	flagServer     string
	flagSTUN       string
	flagTURN       string
	flagTURNUser   string
	flagTURNPass   string
	flagRelay      bool
	flagCodec      string
)

var joinCmd = &cobra.Command{
	Use:     "join <room>",
	Aliases: []string{"j"},
	Short:   "Join a live class",
	Long: `Join a live class by its room key.

Examples:
  classroom join brave-otter-physics --name Ana
  classroom join brave-otter-physics --server class.example.com --relay --turn turn.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(cmd.Context(), args[0], flagInstructor, false)
	},
}

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Open a new class as its instructor",
	Long: `Open a new class under a freshly generated room key and join it as the
instructor. Share the printed key with your students.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(cmd.Context(), roomkey.Generate(nil), true, true)
	},
}

func joinRoom(ctx context.Context, roomID string, instructor, hosting bool) error {
	cfg, err := LoadConfig(config.Options{
		Domain:     flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
		Codec:      flagCodec,
	})
	if err != nil {
		return err
	}

	userID := flagUser
	if userID == "" {
		userID = uuid.NewString()
	}
	userName := flagName
	if userName == "" {
		userName = defaultName()
	}

	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	defer stopSpinner()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.SignalTimeout)
	defer cancel()

	if err := fillTURNCredentials(connectCtx, cfg, userID); err != nil {
		return err
	}
	factory, err := mesh.NewPionFactory(cfg)
	if err != nil {
		return classroom.NewError("create peer factory", err)
	}
	client, err := Connect(connectCtx, cfg)
	if err != nil {
		return err
	}

	session := classroom.New(classroom.Options{
		RoomID:             roomID,
		UserID:             userID,
		UserName:           userName,
		Instructor:         instructor,
		Transport:          client,
		Factory:            factory,
		Capturer:           media.NewSyntheticCapturer(userID),
		NegotiationTimeout: cfg.NegotiationTimeout,
		MaxRenegotiations:  cfg.MaxRenegotiations,
		Logger:             slog.Default(),
	})
	defer session.Leave()

	if err := session.Join(connectCtx); err != nil {
		return err
	}
	cancel()
	stopSpinner()

	if hosting {
		fmt.Println(ui.RoomKeyView(roomID, cfg.Domain))
		fmt.Println()
	}

	if err := ui.RunDashboard(session); err != nil {
		return classroom.NewError("run dashboard", err)
	}

	switch err := session.Err(); {
	case errors.Is(err, classroom.ErrEvicted):
		ui.PrintWarning("You joined this room from another device")
	case errors.Is(err, classroom.ErrDisconnected):
		ui.PrintWarning("Lost connection to the server")
	default:
		ui.PrintSuccessf("Left %s", roomID)
	}
	return nil
}

func defaultName() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "guest"
}

func addConnectionFlags(c *cobra.Command) {
	c.Flags().StringVarP(&flagServer, "server", "d", "", "Signaling server host[:port]")
	c.Flags().StringVarP(&flagUser, "user", "u", "", "User id (default: random)")
	c.Flags().StringVarP(&flagName, "name", "n", "", "Display name (default: $USER)")
	c.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	c.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	c.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	c.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	c.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	c.Flags().StringVar(&flagCodec, "codec", "", "Signaling codec, json or msgpack")
}

func init() {
	rootCmd.AddCommand(joinCmd, hostCmd)

	addConnectionFlags(joinCmd)
	addConnectionFlags(hostCmd)
	joinCmd.Flags().BoolVarP(&flagInstructor, "instructor", "i", false, "Join as an instructor")
}
