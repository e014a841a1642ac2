package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Row is one label/value line of a summary table.
type Row struct {
	Label string
	Value string
}

// SummaryView renders rows as a two-column table under title.
func SummaryView(title string, rows []Row) string {
	t := newTable(title)
	for _, r := range rows {
		if r.Value == "" {
			continue
		}
		t.AppendRow(table.Row{r.Label, r.Value})
	}
	return t.Render()
}

// RenderSummary prints SummaryView to Output.
func RenderSummary(title string, rows []Row) {
	fmt.Fprintln(Output, SummaryView(title, rows))
}

// TrackRow describes one received track.
type TrackRow struct {
	Kind    string
	Codec   string
	Packets uint64
	Bytes   uint64
}

// TrackTableView renders per-track receive counters.
func TrackTableView(tracks []TrackRow, elapsed time.Duration) string {
	t := newTable("Received media")
	t.AppendHeader(table.Row{"Track", "Codec", "Packets", "Data", "Rate"})
	for _, tr := range tracks {
		rate := ""
		if secs := elapsed.Seconds(); secs > 0 {
			rate = FormatBitrate(int(float64(tr.Bytes*8) / secs))
		}
		t.AppendRow(table.Row{tr.Kind, strings.TrimPrefix(tr.Codec, tr.Kind+"/"), tr.Packets, FormatBytes(tr.Bytes), rate})
	}
	t.AppendFooter(table.Row{"", "", "", "elapsed", FormatDuration(elapsed)})
	return t.Render()
}

// RoomRow is one room in a server stats listing.
type RoomRow struct {
	RoomID  string
	HostID  string
	State   string
	Viewers int
}

// RoomTableView renders the rooms a signaling server reports.
func RoomTableView(rooms []RoomRow) string {
	t := newTable(fmt.Sprintf("%d room(s)", len(rooms)))
	t.AppendHeader(table.Row{"Room", "Host", "State", "Viewers"})
	for _, r := range rooms {
		host := r.HostID
		if host == "" {
			host = "-"
		}
		t.AppendRow(table.Row{r.RoomID, host, r.State, r.Viewers})
	}
	return t.Render()
}

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Format.Header = text.FormatUpper
	if title != "" {
		t.SetTitle(title)
	}
	return t
}
