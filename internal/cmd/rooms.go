package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rogue-56/pinch/internal/config"
	"github.com/Rogue-56/pinch/internal/room"
	"github.com/Rogue-56/pinch/internal/session"
	"github.com/Rogue-56/pinch/internal/ui"
)

var flagRoomsServer string

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List active rooms on the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient(config.ClientOptions{Server: flagRoomsServer})
		if err != nil {
			return session.NewError("load config", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		rooms, err := fetchRooms(ctx, http.DefaultClient, cfg.HTTPBase())
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			ui.PrintInfo("No active rooms")
			return nil
		}

		rows := make([]ui.RoomRow, 0, len(rooms))
		for _, r := range rooms {
			rows = append(rows, ui.RoomRow{
				ID:      r.ID,
				Members: r.Members,
				Sharing: r.Sharing,
				Link:    cfg.GetRoomLink(r.ID),
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RoomsTable(rows))
		return nil
	},
}

func fetchRooms(ctx context.Context, client *http.Client, base string) ([]room.Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/rooms", nil)
	if err != nil {
		return nil, session.NewError("list rooms", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, session.WrapError("list rooms", err, base)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, session.NewError("list rooms", fmt.Errorf("relay answered %s", resp.Status))
	}
	var rooms []room.Info
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, session.NewError("decode rooms", err)
	}
	return rooms, nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)

	roomsCmd.Flags().StringVarP(&flagRoomsServer, "server", "s", "", "Relay address, e.g. wss://pinch.example/ws")
}
