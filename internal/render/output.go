package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiDim    = "\x1b[2m"
)

const (
	labelWidth  = 11
	promptWidth = 48
)

var titleCaser = cases.Title(language.English)

// Label title-cases a status word for display.
func Label(word string) string {
	return titleCaser.String(strings.TrimSpace(word))
}

func labelColor(word string) string {
	switch word {
	case "done", "saved":
		return ansiGreen
	case "failed":
		return ansiRed
	case "pending", "submitting":
		return ansiYellow
	case "removed", "cleared":
		return ansiDim
	default:
		return ansiBlue
	}
}

func (b *Board) emitLocked(tile *Tile, detail string) {
	if detail == "" && tile.state == StatePlaceholder {
		detail = quotePrompt(tile.prompt)
	}
	b.writeLocked(b.formatEvent(tile.state.String(), tile.jobID, detail))
}

func (b *Board) formatProgress(tile *Tile) string {
	detail := fmt.Sprintf("%3.0f%%", tile.progress)
	if tile.phase != "" {
		detail += "  " + tile.phase
	}
	return b.formatEvent(StatePending.String(), tile.jobID, detail)
}

func (b *Board) formatEvent(word, jobID, detail string) string {
	label := fmt.Sprintf("%-*s", labelWidth, Label(word))
	if b.color {
		label = labelColor(word) + label + ansiReset
	}
	parts := []string{label}
	subject := b.subject(jobID)
	if subject != "" {
		parts = append(parts, subject)
	}
	if detail = strings.TrimSpace(detail); detail != "" {
		parts = append(parts, detail)
	}
	return strings.Join(parts, "  ")
}

func (b *Board) subject(jobID string) string {
	var parts []string
	if b.variant != "" {
		parts = append(parts, Label(b.variant))
	}
	if jobID != "" {
		parts = append(parts, "Job "+jobID)
	}
	return strings.Join(parts, " · ")
}

func (b *Board) writeLocked(line string) {
	_, _ = fmt.Fprintln(b.out, line)
}

// Snapshot draws every tile as a table.
func (b *Board) Snapshot(w io.Writer) error {
	views := b.Tiles()
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(table.Row{"Job", "Status", "Progress", "Detail", "Prompt"})
	for _, view := range views {
		tw.AppendRow(table.Row{
			displayJobID(view.JobID),
			statusCell(view),
			progressCell(view),
			detailCell(view),
			truncate(view.Prompt, promptWidth),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	if len(views) == 0 {
		tw.AppendRow(table.Row{"", "Empty", "", "", ""})
	}
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func displayJobID(jobID string) string {
	if jobID == "" {
		return "-"
	}
	return jobID
}

func statusCell(view TileView) string {
	label := Label(view.State.String())
	if view.Action == ActionSaving || view.Action == ActionSaved {
		label += " (" + view.Action.String() + ")"
	}
	return label
}

func progressCell(view TileView) string {
	switch view.State {
	case StatePending:
		return fmt.Sprintf("%.0f%%", view.Progress)
	case StateDone:
		return "100%"
	default:
		return ""
	}
}

func detailCell(view TileView) string {
	switch view.State {
	case StateDone:
		return view.ResultURL
	case StateFailed:
		return view.Message
	case StatePending:
		return view.Phase
	default:
		return ""
	}
}

func quotePrompt(prompt string) string {
	if prompt == "" {
		return ""
	}
	return fmt.Sprintf("%q", truncate(prompt, promptWidth))
}

func truncate(value string, width int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= width {
		return string(runes)
	}
	return string(runes[:width-1]) + "…"
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
