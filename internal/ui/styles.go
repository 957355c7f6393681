package ui

import (
	"fmt"
	"sync/atomic"
)

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorOK     = 71  // green
	colorWarn   = 179 // amber
	colorError  = 167 // red
	colorMuted  = 245 // medium gray
)

var noColor atomic.Bool

// SetColor enables or disables color output globally.
func SetColor(enabled bool) {
	noColor.Store(!enabled)
}

func paint(code int, s string) string {
	if noColor.Load() {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

func RenderOK(s string) string    { return paint(colorOK, s) }
func RenderWarn(s string) string  { return paint(colorWarn, s) }
func RenderError(s string) string { return paint(colorError, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }
