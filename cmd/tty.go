package cmd

import (
	"os"

	"github.com/gdamore/tcell/v2"
)

// canInitializeTUI tests if tcell can actually be initialized
func canInitializeTUI() bool {
	if !isTerminal() {
		return false
	}
	screen, err := tcell.NewScreen()
	if err != nil {
		return false
	}
	if err := screen.Init(); err != nil {
		return false
	}
	// Clean up immediately
	screen.Fini()
	return true
}

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return false
}
