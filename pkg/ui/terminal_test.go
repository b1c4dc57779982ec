package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/XinsongDu/Twitter-Tracker/pkg/models"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetNoColor(true)
	t.Cleanup(func() {
		SetOutput(nil)
		SetQuietMode(false)
		SetNoColor(false)
	})
	return &buf
}

func TestQuietModeKeepsErrors(t *testing.T) {
	buf := capture(t)
	SetQuietMode(true)

	PrintInfo("Mode", "search")
	PrintSuccess("done")
	PrintError("Failed to load progress", "file missing")

	assert.Equal(t, "Failed to load progress: file missing\n", buf.String())
}

func TestNoColor(t *testing.T) {
	buf := capture(t)
	PrintInfo("Workers", "8")
	assert.Equal(t, "Workers: 8\n", buf.String())
}

func TestActiveBar(t *testing.T) {
	assert.Equal(t, "[██████████░░░░░░░░░░] 1/2 active", ActiveBar(1, 2))
	assert.Equal(t, "[░░░░░░░░░░░░░░░░░░░░] 0/0 active", ActiveBar(0, 0))
}

func TestPrintTargets(t *testing.T) {
	buf := capture(t)
	PrintTargets([]models.Target{
		{ID: "12", Kind: models.KindUser, SinceID: 100},
		{ID: "34", Kind: models.KindUser, SinceID: 5, Removed: true},
	})

	out := buf.String()
	assert.Contains(t, out, "since_id=100")
	assert.Contains(t, out, "since_id=5 (removed)")
	assert.Contains(t, out, "1/2 active")
}
