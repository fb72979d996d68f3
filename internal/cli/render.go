// Package cli renders harness output for the terminal: per-player result
// tables after a match and history listings from the store.
package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/gocraft2-project/gocraft2/internal/history"
	"github.com/gocraft2-project/gocraft2/internal/match"
)

// RenderResults prints the per-player outcome table for a finished match.
func RenderResults(out io.Writer, results []match.Result) {
	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Player", "Race", "Outcome", "Game Loop", "Notes"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, r := range results {
		notes := r.Error
		if r.Aborted && notes == "" {
			notes = "aborted"
		}
		tw.Append([]string{
			r.Name,
			r.Race.String(),
			r.Outcome.String(),
			fmt.Sprintf("%d", r.GameLoop),
			notes,
		})
	}

	tw.Render()
}

// RenderMatches prints recent matches from the history store, newest first.
func RenderMatches(out io.Writer, matches []history.MatchRecord) {
	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Match ID", "Map", "Game Loop", "Duration", "Result", "Played At"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, m := range matches {
		tw.Append([]string{
			m.MatchID,
			m.Map,
			fmt.Sprintf("%d", m.GameLoop),
			(time.Duration(m.DurationMS) * time.Millisecond).String(),
			summarize(m),
			m.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}

	tw.Render()
}

// RenderStandings prints the per-player win/loss tally.
func RenderStandings(out io.Writer, standings []history.PlayerStanding) {
	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Player", "Played", "Wins", "Losses", "Ties"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, s := range standings {
		tw.Append([]string{
			s.Name,
			fmt.Sprintf("%d", s.Played),
			fmt.Sprintf("%d", s.Wins),
			fmt.Sprintf("%d", s.Losses),
			fmt.Sprintf("%d", s.Ties),
		})
	}

	tw.Render()
}

// summarize compresses a recorded match's outcome into one cell.
func summarize(m history.MatchRecord) string {
	if m.Aborted {
		if m.Error != "" {
			return "aborted: " + m.Error
		}
		return "aborted"
	}
	for _, p := range m.Players {
		if p.Outcome == "victory" {
			return p.Name + " won"
		}
	}
	if len(m.Players) > 0 && m.Players[0].Outcome == "tie" {
		return "tie"
	}
	return "undecided"
}
