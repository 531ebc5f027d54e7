package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Yates-Labs/storyimager/internal/orchestrator"
	"github.com/Yates-Labs/storyimager/internal/story"
	"github.com/Yates-Labs/storyimager/internal/storyerr"
	"github.com/charmbracelet/lipgloss"
)

// LipGloss signature purple/pink palette
var (
	headerColor  = lipgloss.Color("#F780FF") // Bright pink/magenta
	chapterColor = lipgloss.Color("#BD93F9") // Purple
	bodyColor    = lipgloss.Color("#E9E9F4") // Light purple/white
	mutedColor   = lipgloss.Color("#6272A4") // Muted purple
	accentColor  = lipgloss.Color("#8BE9FD") // Cyan accent
	errorColor   = lipgloss.Color("#FF5555") // Red
	successColor = lipgloss.Color("#50FA7B") // Green
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(headerColor).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor)

	chapterStyle = lipgloss.NewStyle().
			Foreground(chapterColor).
			Bold(true)

	bodyStyle = lipgloss.NewStyle().
			Foreground(bodyColor).
			Width(88)

	metaStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	summaryStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor)
)

// renderStory formats s for the terminal.
func renderStory(s *story.Story) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(s.Title()))
	b.WriteString("\n\n")

	if s.Chaptered() {
		for _, c := range s.Chapters() {
			b.WriteString(chapterStyle.Render(c.Title))
			b.WriteString("\n\n")
			b.WriteString(bodyStyle.Render(c.Body))
			b.WriteString("\n\n")
		}
	} else {
		b.WriteString(bodyStyle.Render(s.Body()))
		b.WriteString("\n\n")
	}

	gen := s.Generation()
	b.WriteString(summaryStyle.Render(fmt.Sprintf("%d words, %d chapters", s.WordCount(), len(s.Chapters()))))
	b.WriteString("\n")
	b.WriteString(metaStyle.Render(fmt.Sprintf("%s/%s · %d attempt(s) · %dms · request %s",
		gen.Provider, gen.Model, gen.Attempts, gen.LatencyMS, gen.RequestID)))
	return b.String()
}

// renderError turns err into the message a user should see. Typed failures
// get their actionable text; anything else is shown as is.
func renderError(err error) string {
	msg := err.Error()
	if _, ok := storyerr.As(err); ok {
		msg = storyerr.UserMessage(err)
	}

	var serviceErr *orchestrator.Error
	if errors.As(err, &serviceErr) {
		detail := fmt.Sprintf("request %s failed while %s (%s)", serviceErr.RequestID, serviceErr.State, serviceErr.Kind())
		return errorStyle.Render("Error:") + " " + msg + "\n" + metaStyle.Render(detail)
	}
	return errorStyle.Render("Error:") + " " + msg
}
