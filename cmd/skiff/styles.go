package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Brand colors
var (
	colorPrimary      = lipgloss.Color("#2E86AB") // skiff blue
	colorPrimaryLight = lipgloss.Color("#7FB7D9")
	colorSuccess      = lipgloss.Color("#22C55E")
	colorWarning      = lipgloss.Color("#F59E0B")
	colorError        = lipgloss.Color("#EF4444")
	colorMuted        = lipgloss.Color("240")
)

// Reusable styles
var (
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	infoStyle    = lipgloss.NewStyle().Foreground(colorPrimaryLight)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	labelStyle   = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
)

// Status icons
const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "⚠"
	iconInfo    = "●"
)

// isTTY reports whether stdout is a terminal. Styled output is suppressed
// when piping to files or other programs.
func isTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// printStyled prints a message with the given style if stdout is a TTY,
// otherwise prints it plain.
func printStyled(style lipgloss.Style, msg string) {
	if isTTY() {
		fmt.Println(style.Render(msg))
	} else {
		fmt.Println(msg)
	}
}

func printSuccess(msg string) {
	printStyled(successStyle, iconSuccess+" "+msg)
}

func printError(msg string) {
	printStyled(errorStyle, iconError+" "+msg)
}

func printWarning(msg string) {
	printStyled(warningStyle, iconWarning+" "+msg)
}

func printInfo(msg string) {
	printStyled(infoStyle, iconInfo+" "+msg)
}

func printMuted(msg string) {
	printStyled(mutedStyle, msg)
}
