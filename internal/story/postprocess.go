package story

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Yates-Labs/storyimager/internal/narrative"
	"github.com/Yates-Labs/storyimager/internal/storyerr"
)

// TitlePolicy selects how a title is chosen when the model did not mark one.
type TitlePolicy string

const (
	// TitleFirstLine uses the first non-empty line, truncated.
	TitleFirstLine TitlePolicy = "first-line"
	// TitleFixed always uses the processor's default title.
	TitleFixed TitlePolicy = "fixed"
)

const (
	DefaultTitle          = "Untitled Story"
	DefaultMaxTitleLength = 80

	// Lines longer than this, or ending in sentence punctuation, are prose.
	titleLineLimit = 100
	titleMaxWords  = 14
	prologueTitle  = "Prologue"
)

// ParseTitlePolicy resolves a policy name.
func ParseTitlePolicy(s string) (TitlePolicy, error) {
	switch TitlePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case TitleFirstLine, "":
		return TitleFirstLine, nil
	case TitleFixed:
		return TitleFixed, nil
	default:
		return "", fmt.Errorf("unknown title policy %q (use %s or %s)", s, TitleFirstLine, TitleFixed)
	}
}

// Processor converts raw model text into a Story. It holds only
// configuration and is safe for concurrent use.
type Processor struct {
	Policy         TitlePolicy
	MaxTitleLength int
	DefaultTitle   string

	now func() time.Time
}

// NewProcessor returns a Processor with defaults for zero values.
func NewProcessor(policy TitlePolicy, maxTitleLength int) *Processor {
	if policy == "" {
		policy = TitleFirstLine
	}
	if maxTitleLength <= 0 {
		maxTitleLength = DefaultMaxTitleLength
	}
	return &Processor{
		Policy:         policy,
		MaxTitleLength: maxTitleLength,
		DefaultTitle:   DefaultTitle,
		now:            time.Now,
	}
}

var (
	fencePattern       = regexp.MustCompile("(?s)^```[a-zA-Z]*\\n(.*)\\n```$")
	h1Pattern          = regexp.MustCompile(`^#\s+(.+?)\s*#*$`)
	labelTitlePattern  = regexp.MustCompile(`(?i)^title\s*:\s*(.+)$`)
	boldLinePattern    = regexp.MustCompile(`^\*\*\s*(.+?)\s*\*\*$`)
	headingPattern     = regexp.MustCompile(`^\s{0,3}#{1,6}\s+(.+?)\s*#*$`)
	chapterLinePattern = regexp.MustCompile(`(?i)^(?:chapter|part)\s+(?:\d+|[ivxlcdm]+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s*(?:$|[:.\-–—]\s*\S.*$)`)
	blankRunPattern    = regexp.MustCompile(`\n{3,}`)
)

const markdownEmphasisSet = "*_`#\"'“”"

// Process normalises resp.Text, extracts or derives a title and, when
// prefs.Chapters is set, splits the text into chapters. Chapters are cut from
// the body after title extraction, so a consumed title line never appears in
// a chapter.
func (p *Processor) Process(resp *narrative.Response, prefs narrative.Preferences) (*Story, error) {
	const op = "postprocess"

	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return nil, storyerr.New(storyerr.KindEmptyResponse, op, "the model returned no text")
	}

	text := normalizeText(resp.Text)
	lines := strings.Split(text, "\n")

	title, derived, lines := p.title(lines)
	body := strings.TrimSpace(strings.Join(lines, "\n"))
	if body == "" {
		return nil, storyerr.New(storyerr.KindEmptyResponse, op, "the model returned a title but no story")
	}

	s := &Story{
		title:        title,
		titleDerived: derived,
		body:         body,
		generatedAt:  p.clock(),
		generation: GenerationMetadata{
			Provider:     resp.Provider,
			Model:        resp.Model,
			FinishReason: resp.FinishReason,
			Attempts:     resp.Attempts,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			LatencyMS:    resp.Latency.Milliseconds(),
		},
	}

	if prefs.Chapters {
		s.chapters = splitChapters(body)
		s.body = chapterBodies(s.chapters)
	}

	return s, nil
}

func (p *Processor) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

// title returns the story title, whether it was derived, and the remaining lines.
func (p *Processor) title(lines []string) (string, bool, []string) {
	first := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			first = i
			break
		}
	}
	if first < 0 {
		return p.fallbackTitle(), true, lines
	}

	if title, ok := explicitTitle(lines[first]); ok {
		return title, false, remove(lines, first)
	}

	if p.Policy == TitleFixed {
		return p.fallbackTitle(), true, lines
	}

	// The first non-marker line supplies the title. A title-shaped first line
	// is consumed; a prose line stays in the body.
	for i := first; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if _, isMarker := chapterMarker(line); isMarker {
			continue
		}
		if i == first && looksLikeTitle(line) {
			return cleanTitle(line), true, remove(lines, i)
		}
		if t := truncateTitle(cleanTitle(line), p.MaxTitleLength); t != "" {
			return t, true, lines
		}
		break
	}

	return p.fallbackTitle(), true, lines
}

func (p *Processor) fallbackTitle() string {
	if p.DefaultTitle != "" {
		return p.DefaultTitle
	}
	return DefaultTitle
}

// explicitTitle recognises `# Title`, `Title: X` and a bold line that is not a chapter marker.
func explicitTitle(line string) (string, bool) {
	line = strings.TrimSpace(line)
	var candidate string
	switch {
	case h1Pattern.MatchString(line):
		candidate = h1Pattern.FindStringSubmatch(line)[1]
	case labelTitlePattern.MatchString(line):
		candidate = labelTitlePattern.FindStringSubmatch(line)[1]
	case boldLinePattern.MatchString(line):
		if _, isMarker := chapterMarker(line); isMarker {
			return "", false
		}
		candidate = boldLinePattern.FindStringSubmatch(line)[1]
	default:
		return "", false
	}
	if _, isMarker := chapterMarker(candidate); isMarker {
		return "", false
	}
	candidate = cleanTitle(candidate)
	return candidate, candidate != ""
}

func looksLikeTitle(line string) bool {
	if utf8.RuneCountInString(line) >= titleLineLimit || len(strings.Fields(line)) > titleMaxWords {
		return false
	}
	first, _ := utf8.DecodeRuneInString(strings.TrimLeft(line, markdownEmphasisSet))
	if unicode.IsLower(first) || unicode.IsDigit(first) {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(strings.TrimRight(line, markdownEmphasisSet))
	return !strings.ContainsRune(".!?…,;:", last)
}

func cleanTitle(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), markdownEmphasisSet))
}

// truncateTitle shortens s to at most limit runes, cutting on a word boundary.
func truncateTitle(s string, limit int) string {
	if limit <= 1 {
		limit = DefaultMaxTitleLength
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit-1])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) + "…"
}

// chapterMarker reports whether line opens a chapter and returns its title.
func chapterMarker(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if m := headingPattern.FindStringSubmatch(line); m != nil {
		return cleanTitle(m[1]), true
	}
	if m := boldLinePattern.FindStringSubmatch(line); m != nil && chapterLinePattern.MatchString(m[1]) {
		return cleanTitle(m[1]), true
	}
	if chapterLinePattern.MatchString(line) && utf8.RuneCountInString(line) < titleLineLimit {
		return cleanTitle(line), true
	}
	return "", false
}

// splitChapters cuts body at chapter markers. Text before the first marker
// becomes a prologue; sections without text are dropped. Without markers the
// whole body, minus any title line Process consumed, is a single chapter.
func splitChapters(body string) []Chapter {
	var (
		chapters []Chapter
		preamble string
		current  *Chapter
		buf      []string
	)

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if current == nil {
			preamble = text
			return
		}
		if text != "" {
			chapters = append(chapters, Chapter{Title: current.Title, Body: text})
		}
	}

	for _, line := range strings.Split(body, "\n") {
		if title, ok := chapterMarker(line); ok {
			flush()
			current = &Chapter{Title: title}
			continue
		}
		buf = append(buf, line)
	}
	flush()

	if len(chapters) == 0 {
		return []Chapter{{Title: "Chapter 1", Body: body}}
	}
	if preamble != "" {
		chapters = append([]Chapter{{Title: prologueTitle, Body: preamble}}, chapters...)
	}
	return chapters
}

func chapterBodies(chapters []Chapter) string {
	parts := make([]string, len(chapters))
	for i, c := range chapters {
		parts[i] = c.Body
	}
	return strings.Join(parts, "\n\n")
}

// normalizeText unifies line endings, unwraps a code fence, strips trailing
// spaces and collapses runs of blank lines.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSpace(s)

	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	s = strings.Join(lines, "\n")
	s = blankRunPattern.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}

func remove(lines []string, i int) []string {
	out := make([]string, 0, len(lines)-1)
	out = append(out, lines[:i]...)
	return append(out, lines[i+1:]...)
}
