package ui

import "github.com/charmbracelet/lipgloss"

// Palette. Named by role so the views never pick raw colors.
var (
	ColorAccent  = lipgloss.Color("#00FFFF")
	ColorAlert   = lipgloss.Color("#FF0000")
	ColorLive    = lipgloss.Color("#00FF00")
	ColorCount   = lipgloss.Color("#FFFF00")
	ColorSpeaker = lipgloss.Color("#FF00FF")
	ColorText    = lipgloss.Color("#FFFFFF")
	ColorMuted   = lipgloss.Color("#666666")
	ColorRule    = lipgloss.Color("#444444")
)

var (
	// Header line.
	TitleStyle        = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	RecordingDotStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAlert)
	CountStyle        = lipgloss.NewStyle().Foreground(ColorCount)

	// Secondary text: idle marker, status, timestamps, key descriptions.
	MutedStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	ErrorStyle     = lipgloss.NewStyle().Bold(true).Foreground(ColorAlert)
	ErrorTextStyle = lipgloss.NewStyle().Foreground(ColorAlert)
	NoticeStyle    = lipgloss.NewStyle().Foreground(ColorLive)

	// Panels.
	PanelTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorText)
	ActivePanelStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent).Underline(true)
	SelectedStyle    = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	DividerStyle     = lipgloss.NewStyle().Foreground(ColorRule)

	// Transcript lines.
	SpeakerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorSpeaker)

	LiveBadgeStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorLive)
	SavedBadgeStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorCount)

	FooterKeyStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorCount)
)
