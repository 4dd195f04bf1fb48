package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ParticipantRow is one line of the participants panel.
type ParticipantRow struct {
	Name    string
	Media   string
	Screen  string
	Sharing bool
}

// ParticipantTable renders the room roster with per-peer link state.
func ParticipantTable(rows []ParticipantRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("Nobody else is here yet")
	}

	var cells [][]string
	for _, r := range rows {
		name := truncate(r.Name, 20)
		if r.Sharing {
			name += " " + IconScreen
		}
		cells = append(cells, []string{name, r.Media, r.Screen})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Name", "Media", "Screen").
		Rows(cells...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			base := TableRowStyle
			if row%2 != 0 {
				base = TableRowAltStyle
			}
			if col > 0 && row >= 0 && row < len(cells) {
				return linkStateStyle(base, cells[row][col])
			}
			return base
		}).
		Render()
}

// RoomInfo is the banner printed once the room is joined.
type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func (r RoomInfo) View() string {
	content := fmt.Sprintf("%s Joining room\n\n%s Room ID:    %s\n%s Room Link:  %s",
		IconRoom,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
	)
	return BannerStyle.Render(content)
}

// RoomRow is one active room on the relay.
type RoomRow struct {
	ID      string
	Members int
	Sharing int
	Link    string
}

// RoomsTable renders the relay's room listing.
func RoomsTable(rows []RoomRow) string {
	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(prettytable.Row{"Room", "Members", "Sharing", "Link"})

	members := 0
	for _, r := range rows {
		t.AppendRow(prettytable.Row{r.ID, r.Members, r.Sharing, r.Link})
		members += r.Members
	}
	t.AppendFooter(prettytable.Row{strconv.Itoa(len(rows)) + " rooms", members, "", ""})
	t.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	return t.Render()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
