package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rogue-56/pinch/internal/capture"
	"github.com/Rogue-56/pinch/internal/config"
	"github.com/Rogue-56/pinch/internal/engine"
	"github.com/Rogue-56/pinch/internal/logging"
	"github.com/Rogue-56/pinch/internal/protocol"
	"github.com/Rogue-56/pinch/internal/room"
	"github.com/Rogue-56/pinch/internal/session"
	"github.com/Rogue-56/pinch/internal/ui"
	"github.com/Rogue-56/pinch/internal/version"
)

const joinTimeout = 20 * time.Second

var (
	flagJoinServer    string
	flagJoinSTUN      string
	flagJoinTURN      string
	flagJoinTURNUser  string
	flagJoinTURNPass  string
	flagJoinRelay     bool
	flagJoinCodec     string
	flagJoinName      string
	flagJoinTimeout   string
	flagJoinLogFile   string
	flagJoinLogFormat string
)

var joinCmd = &cobra.Command{
	Use:     "join [room-id|url]",
	Aliases: []string{"j"},
	Short:   "Join a call, or start a new one",
	Long: `Join a room on the relay and call everyone in it. Without an argument a
new room ID is generated; share the printed link with the others.

Examples:
  pinch join
  pinch join abc123
  pinch join https://pinch.example/room/abc123
  pinch join abc123 --name Ada --relay --turn turn.example`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := room.NewID()
		if len(args) == 1 {
			var err error
			if roomID, err = parseRoomInput(args[0]); err != nil {
				return err
			}
		}
		return joinCall(roomID)
	},
}

func joinCall(roomID string) error {
	cfg, err := config.LoadClient(config.ClientOptions{
		Server:             flagJoinServer,
		STUNServer:         flagJoinSTUN,
		TURNServer:         flagJoinTURN,
		TURNUser:           flagJoinTURNUser,
		TURNPass:           flagJoinTURNPass,
		ForceRelay:         flagJoinRelay,
		Codec:              flagJoinCodec,
		Name:               flagJoinName,
		NegotiationTimeout: flagJoinTimeout,
	})
	if err != nil {
		return session.NewError("load config", err)
	}

	logger, closeLog, err := newLogger(flagJoinLogFile, flagJoinLogFormat)
	if err != nil {
		return err
	}
	defer closeLog()

	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return session.NewError("load config", err)
	}
	factory, err := engine.NewPion(engine.ConfigFromClient(cfg, logger))
	if err != nil {
		return session.NewError("create engine", err)
	}

	roomLink := cfg.GetRoomLink(roomID)
	fmt.Println()
	fmt.Println(ui.RoomInfo{RoomID: roomID, RoomLink: roomLink}.View())

	view := ui.NewRoomUI(roomID, roomLink, logger)
	defer view.Stop()

	spin := ui.NewConnectionSpinner("Starting camera and microphone...")
	spin.Start()
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	sess, err := session.Join(ctx, session.Options{
		RoomID:             roomID,
		Name:               cfg.Name,
		URL:                cfg.SignalingURL(),
		Codec:              codec,
		Engine:             factory,
		Capture:            afterCameraMic(capture.Synthetic{}, func() { spin.UpdateMessage("Connecting to relay...") }),
		NegotiationTimeout: cfg.NegotiationTimeout,
		Observer:           view,
		Logger:             logger,
	})
	cancel()
	if err != nil {
		spin.Stop()
		return err
	}
	spin.Success("Connected to " + cfg.HTTPBase())

	view.Attach(sess)
	runErr := view.Run(nil, nil)
	if err := sess.Leave(); err != nil {
		ui.PrintWarning(err.Error())
	}
	if runErr != nil {
		return runErr
	}
	ui.PrintSuccessf("Left room %s", roomID)
	return nil
}

// afterCameraMic calls next once the camera and microphone are acquired.
func afterCameraMic(p capture.Provider, next func()) capture.Provider {
	return capture.ProviderFunc(func(ctx context.Context, kind capture.Kind) (*capture.Stream, error) {
		s, err := p.Acquire(ctx, kind)
		if err == nil && kind == capture.KindCameraMic {
			next()
		}
		return s, err
	})
}

// newLogger writes to path when set. The room view owns the terminal, so
// without a file only errors reach stderr.
func newLogger(path, format string) (*slog.Logger, func(), error) {
	cfg := logging.Config{
		Service: "pinch",
		Version: version.Version,
		Level:   logging.LevelFromEnv(slog.LevelError),
		Backend: logging.Backend(format),
	}
	closeFn := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, session.NewError("open log file", err)
		}
		cfg.Output = f
		cfg.Level = logging.LevelFromEnv(slog.LevelInfo)
		closeFn = func() { _ = f.Close() }
	}
	return logging.New(cfg), closeFn, nil
}

func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	if strings.Contains(input, "://") || strings.Contains(input, "/") {
		roomID, err := extractRoomIDFromURL(input)
		if err != nil {
			return "", err
		}
		ui.PrintSuccessf("Extracted room ID: %s", roomID)
		return roomID, nil
	}

	return input, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", session.NewError("parse URL", err)
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if part == "room" && i+1 < len(parts) && parts[i+1] != "" {
			return url.PathUnescape(parts[i+1])
		}
	}

	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagJoinServer, "server", "s", "", "Relay address, e.g. wss://pinch.example/ws")
	joinCmd.Flags().StringVar(&flagJoinSTUN, "stun", "", "STUN server URL")
	joinCmd.Flags().StringVar(&flagJoinTURN, "turn", "", "TURN server host or URL")
	joinCmd.Flags().StringVar(&flagJoinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagJoinTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().BoolVar(&flagJoinRelay, "relay", false, "Only use relayed (TURN) candidates")
	joinCmd.Flags().StringVar(&flagJoinCodec, "codec", "", "Signaling frame codec: json or msgpack")
	joinCmd.Flags().StringVarP(&flagJoinName, "name", "n", "", "Display name to ask for")
	joinCmd.Flags().StringVar(&flagJoinTimeout, "negotiation-timeout", "", "Give up on a peer link after this long, e.g. 30s")
	joinCmd.Flags().StringVar(&flagJoinLogFile, "log-file", "", "Write logs to this file")
	joinCmd.Flags().StringVar(&flagJoinLogFormat, "log-format", "text", "Log format: text, json or zap")
}
