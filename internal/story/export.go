package story

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
)

// ExportFormat represents supported export formats
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatMarkdown ExportFormat = "markdown"
	FormatText     ExportFormat = "text"
)

var formatExtensions = map[ExportFormat]string{
	FormatJSON:     "json",
	FormatMarkdown: "md",
	FormatText:     "txt",
}

// ParseExportFormat accepts a format name or a file extension.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt", "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported export format: %s (supported: json, markdown, text)", s)
	}
}

// FormatForPath picks an export format from a filename, ignoring a trailing .gz.
func FormatForPath(path string) (ExportFormat, error) {
	path = strings.TrimSuffix(strings.ToLower(path), ".gz")
	return ParseExportFormat(filepath.Ext(path))
}

// Extension returns the file extension for f without the dot.
func (f ExportFormat) Extension() string {
	if ext, ok := formatExtensions[f]; ok {
		return ext
	}
	return "txt"
}

// Export writes s to w in the given format.
func Export(s *Story, format ExportFormat, w io.Writer) error {
	if s == nil {
		return fmt.Errorf("nothing to export: story is nil")
	}

	switch format {
	case FormatJSON:
		return exportJSON(s, w)
	case FormatMarkdown:
		_, err := io.WriteString(w, renderMarkdown(s))
		return err
	case FormatText:
		_, err := io.WriteString(w, renderText(s))
		return err
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, markdown, text)", format)
	}
}

// exportJSON writes the story as indented JSON
func exportJSON(s *Story, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(s.export())
}

func renderMarkdown(s *Story) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.title)
	if s.Chaptered() {
		for _, c := range s.chapters {
			fmt.Fprintf(&b, "## %s\n\n%s\n\n", c.Title, c.Body)
		}
	} else {
		b.WriteString(s.body)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderText(s *Story) string {
	var b strings.Builder
	b.WriteString(s.title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", len([]rune(s.title))))
	b.WriteString("\n\n")
	if s.Chaptered() {
		for _, c := range s.chapters {
			fmt.Fprintf(&b, "%s\n\n%s\n\n", c.Title, c.Body)
		}
	} else {
		b.WriteString(s.body)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// Filename returns the download name for s, e.g. story_the_silent_harbor.md.
func Filename(s *Story, format ExportFormat) string {
	slug := "untitled"
	if s != nil {
		if t := slugify(s.title); t != "" {
			slug = t
		}
	}
	return "story_" + slug + "." + format.Extension()
}

func slugify(title string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			underscore = false
		case b.Len() > 0 && !underscore:
			b.WriteByte('_')
			underscore = true
		}
		if b.Len() >= 60 {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}
