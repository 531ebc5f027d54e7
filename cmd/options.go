package cmd

import (
	"fmt"
	"strings"

	"github.com/Yates-Labs/storyimager/internal/narrative"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List the accepted story preferences",
	Long: `List every value accepted by the preference flags of "generate".

Values are matched ignoring case, spaces, hyphens and underscores, so
"sci fi", "Sci-Fi" and "scifi" are the same genre.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), renderOptions())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(optionsCmd)
}

type optionRow struct {
	flag    string
	def     string
	choices []string
}

func optionRows() []optionRow {
	def := narrative.DefaultPreferences()
	return []optionRow{
		{"--genre", string(def.Genre), asStrings(narrative.Genres)},
		{"--style", string(def.Style), asStrings(narrative.Styles)},
		{"--tone", string(def.Tone), asStrings(narrative.Tones)},
		{"--language", string(def.Language), asStrings(narrative.Languages)},
		{"--length", string(def.Length), asStrings(narrative.Lengths)},
		{"--perspective", string(def.Perspective), asStrings(narrative.Perspectives)},
		{"--audience", string(def.Audience), asStrings(narrative.Audiences)},
		{"--creativity", fmt.Sprint(def.Creativity), []string{fmt.Sprintf("%d..%d", narrative.MinCreativity, narrative.MaxCreativity)}},
	}
}

func asStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func renderOptions() string {
	const (
		flagWidth    = 15
		defaultWidth = 24
		choiceWidth  = 60
	)

	headerStyle := lipgloss.NewStyle().
		Foreground(headerColor).
		Bold(true).
		Padding(0, 1)
	borderStyle := lipgloss.NewStyle().Foreground(mutedColor)
	flagStyle := lipgloss.NewStyle().
		Foreground(chapterColor).
		Padding(0, 1).
		Width(flagWidth)
	defaultStyle := lipgloss.NewStyle().
		Foreground(accentColor).
		Padding(0, 1).
		Width(defaultWidth)
	choiceStyle := lipgloss.NewStyle().
		Foreground(bodyColor).
		Padding(0, 1).
		Width(choiceWidth)

	var lines []string
	headers := []string{
		headerStyle.Width(flagWidth).Render("FLAG"),
		headerStyle.Width(defaultWidth).Render("DEFAULT"),
		headerStyle.Width(choiceWidth).Render("CHOICES"),
	}
	lines = append(lines, strings.Join(headers, borderStyle.Render("│")))
	lines = append(lines, borderStyle.Render(strings.Join([]string{
		strings.Repeat("─", flagWidth),
		strings.Repeat("─", defaultWidth),
		strings.Repeat("─", choiceWidth),
	}, "┼")))

	for _, row := range optionRows() {
		cells := []string{
			flagStyle.Render(row.flag),
			defaultStyle.Render(row.def),
			choiceStyle.Render(strings.Join(row.choices, ", ")),
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			cells[0], borderStyle.Render("│"), cells[1], borderStyle.Render("│"), cells[2]))
	}

	lines = append(lines, "",
		summaryStyle.Render("Switches: --chapters, --no-title, --emojis"))
	return strings.Join(lines, "\n")
}
