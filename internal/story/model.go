// Package story turns raw model output into a titled, optionally chaptered
// Story and renders stories for export.
package story

import (
	"encoding/json"
	"strings"
	"time"
)

// SchemaVersion is the current version of the exported story format.
const SchemaVersion = "v1"

// Chapter is a logical subdivision of a story.
type Chapter struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// GenerationMetadata captures where a story came from.
type GenerationMetadata struct {
	RequestID    string `json:"request_id,omitempty"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	LatencyMS    int64  `json:"latency_ms,omitempty"`
}

// Story is the final, immutable result of a generation. Accessors return
// copies so callers cannot alter a shared instance.
type Story struct {
	title        string
	titleDerived bool
	body         string
	chapters     []Chapter
	generatedAt  time.Time
	generation   GenerationMetadata
}

func (s *Story) Title() string { return s.title }

// TitleDerived reports whether the title was inferred rather than marked by the model.
func (s *Story) TitleDerived() bool { return s.titleDerived }

// Body is the story text without its title.
func (s *Story) Body() string { return s.body }

// Chaptered reports whether the story was split into chapters.
func (s *Story) Chaptered() bool { return s.chapters != nil }

// Chapters returns the chapters in order, or nil for an unchaptered story.
func (s *Story) Chapters() []Chapter {
	if s.chapters == nil {
		return nil
	}
	out := make([]Chapter, len(s.chapters))
	copy(out, s.chapters)
	return out
}

func (s *Story) GeneratedAt() time.Time { return s.generatedAt }

func (s *Story) Generation() GenerationMetadata { return s.generation }

// WordCount counts whitespace-separated words in the body.
func (s *Story) WordCount() int {
	return len(strings.Fields(s.body))
}

// WithRequestID returns a copy of s stamped with id.
func (s *Story) WithRequestID(id string) *Story {
	clone := *s
	clone.chapters = s.Chapters()
	clone.generation.RequestID = id
	return &clone
}

// storyExport is the serialised form of a Story.
type storyExport struct {
	Version      string             `json:"version"`
	Title        string             `json:"title"`
	TitleDerived bool               `json:"title_derived"`
	Chapters     []Chapter          `json:"chapters,omitempty"`
	Body         string             `json:"body"`
	WordCount    int                `json:"word_count"`
	GeneratedAt  time.Time          `json:"generated_at"`
	Generation   GenerationMetadata `json:"generation"`
}

func (s *Story) export() storyExport {
	return storyExport{
		Version:      SchemaVersion,
		Title:        s.title,
		TitleDerived: s.titleDerived,
		Chapters:     s.Chapters(),
		Body:         s.body,
		WordCount:    s.WordCount(),
		GeneratedAt:  s.generatedAt,
		Generation:   s.generation,
	}
}

func (s *Story) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.export())
}
