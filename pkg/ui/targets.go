package ui

import (
	"fmt"
	"strings"

	"github.com/XinsongDu/Twitter-Tracker/pkg/models"
)

const (
	barFull  = "█"
	barEmpty = "░"
	barWidth = 20
)

// ActiveBar renders the share of targets still being tracked
func ActiveBar(active, total int) string {
	filled := 0
	if total > 0 {
		filled = active * barWidth / total
	}
	return fmt.Sprintf("[%s%s] %d/%d active",
		strings.Repeat(barFull, filled),
		strings.Repeat(barEmpty, barWidth-filled),
		active, total)
}

// PrintTargets lists targets with their watermark, removed ones dimmed
func PrintTargets(targets []models.Target) {
	active := 0
	for _, t := range targets {
		label := t.ID
		if t.Kind == models.KindQuery {
			label = fmt.Sprintf("%s %s", t.ID, Dim(t.QueryString()))
		}
		line := fmt.Sprintf("  %-24s since_id=%d", label, t.SinceID)
		if t.Removed {
			Println(Dim(line + " (removed)"))
			continue
		}
		active++
		Println(line)
	}
	Println()
	PrintHighlight(ActiveBar(active, len(targets)))
}
