package story

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Yates-Labs/storyimager/internal/narrative"
	"github.com/Yates-Labs/storyimager/internal/storyerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func testProcessor(policy TitlePolicy) *Processor {
	p := NewProcessor(policy, 0)
	p.now = func() time.Time { return fixedTime }
	return p
}

func response(text string) *narrative.Response {
	return &narrative.Response{
		Text:         text,
		FinishReason: "STOP",
		Provider:     narrative.ProviderMock,
		Model:        "mock",
		Attempts:     2,
		Latency:      1500 * time.Millisecond,
	}
}

func chaptered() narrative.Preferences {
	p := narrative.DefaultPreferences()
	p.Chapters = true
	return p
}

func TestProcess_NoMarkersSingleChapter(t *testing.T) {
	text := "the fog rolled over the pier before anyone woke.\n\nBy noon the harbor was silent."
	s, err := testProcessor(TitleFirstLine).Process(response(text), chaptered())
	require.NoError(t, err)

	chapters := s.Chapters()
	require.Len(t, chapters, 1)
	assert.Equal(t, "Chapter 1", chapters[0].Title)
	assert.Equal(t, text, chapters[0].Body)
	assert.True(t, s.TitleDerived())
}

func TestProcess_ThreeMarkedSectionsDerivedTitle(t *testing.T) {
	text := strings.Join([]string{
		"## Chapter 1: The Letter",
		"Rain hammered the window of the old office.",
		"",
		"## Chapter 2: The Key",
		"The key did not fit any lock in the building.",
		"",
		"## Chapter 3: The Door",
		"At last, the cellar door gave way.",
	}, "\n")

	s, err := testProcessor(TitleFirstLine).Process(response(text), chaptered())
	require.NoError(t, err)

	chapters := s.Chapters()
	require.Len(t, chapters, 3)
	assert.Equal(t, "Chapter 1: The Letter", chapters[0].Title)
	assert.Equal(t, "Rain hammered the window of the old office.", chapters[0].Body)
	assert.Equal(t, "Chapter 3: The Door", chapters[2].Title)

	assert.True(t, s.TitleDerived())
	assert.Equal(t, "Rain hammered the window of the old office.", s.Title())
}

func TestProcess_ExplicitTitleMarkers(t *testing.T) {
	tests := []struct {
		name  string
		first string
		want  string
	}{
		{"heading", "# The Silent Harbor", "The Silent Harbor"},
		{"label", "Title: The Silent Harbor", "The Silent Harbor"},
		{"bold", "**The Silent Harbor**", "The Silent Harbor"},
		{"quoted heading", "# \"The Silent Harbor\"", "The Silent Harbor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := testProcessor(TitleFixed).Process(response(tt.first+"\n\nOnce upon a time."), narrative.DefaultPreferences())
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Title())
			assert.False(t, s.TitleDerived())
			assert.Equal(t, "Once upon a time.", s.Body())
		})
	}
}

func TestProcess_BoldChapterIsNotTitle(t *testing.T) {
	text := "**Chapter 1**\nIt began at dawn.\n\n**Chapter 2**\nIt ended at dusk."
	s, err := testProcessor(TitleFixed).Process(response(text), chaptered())
	require.NoError(t, err)

	assert.Equal(t, DefaultTitle, s.Title())
	require.Len(t, s.Chapters(), 2)
	assert.Equal(t, "Chapter 2", s.Chapters()[1].Title)
}

func TestProcess_FixedPolicy(t *testing.T) {
	s, err := testProcessor(TitleFixed).Process(response("A Quiet Morning\n\nThe kettle sang."), narrative.DefaultPreferences())
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, s.Title())
	assert.True(t, s.TitleDerived())
	assert.Equal(t, "A Quiet Morning\n\nThe kettle sang.", s.Body())
}

func TestProcess_TitleShapedFirstLineConsumed(t *testing.T) {
	s, err := testProcessor(TitleFirstLine).Process(response("A Quiet Morning\n\nThe kettle sang."), narrative.DefaultPreferences())
	require.NoError(t, err)
	assert.Equal(t, "A Quiet Morning", s.Title())
	assert.Equal(t, "The kettle sang.", s.Body())
}

func TestProcess_SingleChapterExcludesConsumedTitle(t *testing.T) {
	s, err := testProcessor(TitleFirstLine).Process(response("A Quiet Morning\n\nThe kettle sang.\n\nNobody answered it."), chaptered())
	require.NoError(t, err)
	assert.Equal(t, "A Quiet Morning", s.Title())

	chapters := s.Chapters()
	require.Len(t, chapters, 1)
	assert.Equal(t, "The kettle sang.\n\nNobody answered it.", chapters[0].Body)
}

func TestProcess_ProseFirstLineTruncated(t *testing.T) {
	line := "The lighthouse keeper had not spoken to anyone in eleven years, and he intended to keep it that way until the storm arrived."
	s, err := testProcessor(TitleFirstLine).Process(response(line), narrative.DefaultPreferences())
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(s.Title(), "…"))
	assert.LessOrEqual(t, len([]rune(s.Title())), DefaultMaxTitleLength)
	assert.True(t, strings.HasPrefix(line, strings.TrimSuffix(s.Title(), "…")))
	assert.Equal(t, line, s.Body())
}

func TestProcess_Prologue(t *testing.T) {
	text := "# Night Train\n\nThe station clock had stopped.\n\n## Departure\nWheels screamed.\n\n## Arrival\nNobody got off."
	s, err := testProcessor(TitleFirstLine).Process(response(text), chaptered())
	require.NoError(t, err)

	chapters := s.Chapters()
	require.Len(t, chapters, 3)
	assert.Equal(t, "Prologue", chapters[0].Title)
	assert.Equal(t, "The station clock had stopped.", chapters[0].Body)
	assert.Equal(t, "Departure", chapters[1].Title)
	assert.Equal(t, "Arrival", chapters[2].Title)
}

func TestProcess_EmptyChaptersDropped(t *testing.T) {
	text := "## One\n\n## Two\nSomething happened.\n\n## Three\n"
	s, err := testProcessor(TitleFixed).Process(response(text), chaptered())
	require.NoError(t, err)
	require.Len(t, s.Chapters(), 1)
	assert.Equal(t, "Two", s.Chapters()[0].Title)
}

func TestProcess_StripsFenceAndNormalises(t *testing.T) {
	text := "```markdown\r\n# Fenced\r\n\r\n\r\n\r\nLine one.   \r\nLine two.\r\n```"
	s, err := testProcessor(TitleFirstLine).Process(response(text), narrative.DefaultPreferences())
	require.NoError(t, err)
	assert.Equal(t, "Fenced", s.Title())
	assert.Equal(t, "Line one.\nLine two.", s.Body())
	assert.Nil(t, s.Chapters())
	assert.False(t, s.Chaptered())
}

func TestProcess_Empty(t *testing.T) {
	p := testProcessor(TitleFirstLine)

	for _, resp := range []*narrative.Response{nil, response(""), response("  \n\t ")} {
		_, err := p.Process(resp, narrative.DefaultPreferences())
		require.Error(t, err)
		assert.True(t, errors.Is(err, storyerr.ErrEmptyResponse))
	}

	_, err := p.Process(response("# Only A Title"), narrative.DefaultPreferences())
	assert.True(t, errors.Is(err, storyerr.ErrEmptyResponse))
}

func TestProcess_Metadata(t *testing.T) {
	s, err := testProcessor(TitleFirstLine).Process(response("# T\n\nbody words here"), narrative.DefaultPreferences())
	require.NoError(t, err)

	gen := s.Generation()
	assert.Equal(t, narrative.ProviderMock, gen.Provider)
	assert.Equal(t, "STOP", gen.FinishReason)
	assert.Equal(t, 2, gen.Attempts)
	assert.Equal(t, int64(1500), gen.LatencyMS)
	assert.Equal(t, fixedTime, s.GeneratedAt())
	assert.Equal(t, 3, s.WordCount())

	stamped := s.WithRequestID("req-1")
	assert.Equal(t, "req-1", stamped.Generation().RequestID)
	assert.Empty(t, s.Generation().RequestID)
}

func TestChaptersReturnsCopy(t *testing.T) {
	s, err := testProcessor(TitleFixed).Process(response("## A\nx\n\n## B\ny"), chaptered())
	require.NoError(t, err)

	chapters := s.Chapters()
	chapters[0].Title = "changed"
	assert.Equal(t, "A", s.Chapters()[0].Title)
}

func TestChapterMarker(t *testing.T) {
	tests := []struct {
		line   string
		want   string
		marker bool
	}{
		{"## Chapter 1: The Letter", "Chapter 1: The Letter", true},
		{"### Interlude", "Interlude", true},
		{"Chapter IV", "Chapter IV", true},
		{"Part two - The Return", "Part two - The Return", true},
		{"**Chapter 3: Fog**", "Chapter 3: Fog", true},
		{"Chapters are hard to write.", "", false},
		{"The chapter closed.", "", false},
		{"#hashtag", "", false},
	}

	for _, tt := range tests {
		got, ok := chapterMarker(tt.line)
		assert.Equal(t, tt.marker, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestTruncateTitle(t *testing.T) {
	assert.Equal(t, "short", truncateTitle("short", 80))
	got := truncateTitle("one two three four five six", 12)
	assert.Equal(t, "one two…", got)
	assert.LessOrEqual(t, len([]rune(got)), 12)
}

func TestParseTitlePolicy(t *testing.T) {
	p, err := ParseTitlePolicy("")
	require.NoError(t, err)
	assert.Equal(t, TitleFirstLine, p)

	p, err = ParseTitlePolicy(" Fixed ")
	require.NoError(t, err)
	assert.Equal(t, TitleFixed, p)

	_, err = ParseTitlePolicy("smart")
	assert.Error(t, err)
}
