package output

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "#16858E", Dark: "#2CD7C7"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#1E8449", Dark: "#2ECC71"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#B7950B", Dark: "#F4D03F"}
	colorError   = lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#E74C3C"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#7F8C8D", Dark: "#6C7A89"}
)

// Styles holds the lipgloss styles of one renderer.
type Styles struct {
	Header        lipgloss.Style
	Header2       lipgloss.Style
	Bold          lipgloss.Style
	Muted         lipgloss.Style
	Info          lipgloss.Style
	Success       lipgloss.Style
	Warning       lipgloss.Style
	Error         lipgloss.Style
	ProjectName   lipgloss.Style
	Path          lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusRunning lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header:        r.NewStyle().Bold(true).Foreground(colorAccent),
		Header2:       r.NewStyle().Bold(true),
		Bold:          r.NewStyle().Bold(true),
		Muted:         r.NewStyle().Foreground(colorMuted),
		Info:          r.NewStyle().Foreground(colorAccent),
		Success:       r.NewStyle().Foreground(colorSuccess),
		Warning:       r.NewStyle().Foreground(colorWarning),
		Error:         r.NewStyle().Foreground(colorError).Bold(true),
		ProjectName:   r.NewStyle().Foreground(colorAccent),
		Path:          r.NewStyle().Underline(true),
		StatusSuccess: r.NewStyle().Foreground(colorSuccess).SetString("✓"),
		StatusFailed:  r.NewStyle().Foreground(colorError).SetString("✗"),
		StatusRunning: r.NewStyle().Foreground(colorWarning).SetString("○"),
	}
}
