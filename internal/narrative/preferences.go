package narrative

import (
	"fmt"
	"strings"

	"github.com/Yates-Labs/storyimager/internal/storyerr"
)

type (
	Genre       string
	Style       string
	Tone        string
	Language    string
	Length      string
	Perspective string
	Audience    string
)

const (
	GenreFantasy     Genre = "Fantasy"
	GenreSciFi       Genre = "Sci-Fi"
	GenreRomance     Genre = "Romance"
	GenreHorror      Genre = "Horror"
	GenreMystery     Genre = "Mystery"
	GenreAdventure   Genre = "Adventure"
	GenreSliceOfLife Genre = "Slice of Life"
)

const (
	StyleCinematic     Style = "Cinematic"
	StylePoetic        Style = "Poetic"
	StyleDark          Style = "Dark"
	StyleHumorous      Style = "Humorous"
	StyleChildrensBook Style = "Children's book"
	StyleEpic          Style = "Epic"
	StyleMinimalist    Style = "Minimalist"
)

const (
	ToneLight         Tone = "Light"
	ToneEmotional     Tone = "Emotional"
	ToneDramatic      Tone = "Dramatic"
	ToneDark          Tone = "Dark"
	ToneInspirational Tone = "Inspirational"
)

const (
	LanguageEnglish Language = "English"
	LanguageFrench  Language = "French"
	LanguageSpanish Language = "Spanish"
	LanguageArabic  Language = "Arabic"
	LanguageGerman  Language = "German"
)

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

const (
	PerspectiveFirstPerson           Perspective = "First person"
	PerspectiveThirdPersonLimited    Perspective = "Third person limited"
	PerspectiveThirdPersonOmniscient Perspective = "Third person omniscient"
)

const (
	AudienceKids   Audience = "Kids"
	AudienceTeens  Audience = "Teens"
	AudienceAdults Audience = "Adults"
)

// Option lists in display order.
var (
	Genres       = []Genre{GenreFantasy, GenreSciFi, GenreRomance, GenreHorror, GenreMystery, GenreAdventure, GenreSliceOfLife}
	Styles       = []Style{StyleCinematic, StylePoetic, StyleDark, StyleHumorous, StyleChildrensBook, StyleEpic, StyleMinimalist}
	Tones        = []Tone{ToneLight, ToneEmotional, ToneDramatic, ToneDark, ToneInspirational}
	Languages    = []Language{LanguageEnglish, LanguageFrench, LanguageSpanish, LanguageArabic, LanguageGerman}
	Lengths      = []Length{LengthShort, LengthMedium, LengthLong}
	Perspectives = []Perspective{PerspectiveFirstPerson, PerspectiveThirdPersonLimited, PerspectiveThirdPersonOmniscient}
	Audiences    = []Audience{AudienceKids, AudienceTeens, AudienceAdults}
)

const (
	MinCreativity     = 1
	MaxCreativity     = 10
	DefaultCreativity = 7
)

// Preferences are the user's narrative choices. String fields are matched
// against the option lists ignoring case, spaces, hyphens and underscores;
// empty fields take defaults.
type Preferences struct {
	Genre       Genre       `json:"genre" yaml:"genre"`
	Style       Style       `json:"style" yaml:"style"`
	Tone        Tone        `json:"tone" yaml:"tone"`
	Language    Language    `json:"language" yaml:"language"`
	Length      Length      `json:"length" yaml:"length"`
	Perspective Perspective `json:"perspective" yaml:"perspective"`
	Audience    Audience    `json:"audience" yaml:"audience"`

	// Creativity ranges 1..10; 0 means default.
	Creativity int `json:"creativity" yaml:"creativity"`

	// OmitTitle asks the model not to title the story.
	OmitTitle   bool `json:"omit_title" yaml:"omit_title"`
	Chapters    bool `json:"chapters" yaml:"chapters"`
	AllowEmojis bool `json:"allow_emojis" yaml:"allow_emojis"`
}

// DefaultPreferences returns the defaults every empty field resolves to.
func DefaultPreferences() Preferences {
	return Preferences{
		Genre:       GenreFantasy,
		Style:       StyleCinematic,
		Tone:        ToneLight,
		Language:    LanguageEnglish,
		Length:      LengthMedium,
		Perspective: PerspectiveThirdPersonLimited,
		Audience:    AudienceAdults,
		Creativity:  DefaultCreativity,
	}
}

// IncludeTitle reports whether the model should title the story.
func (p Preferences) IncludeTitle() bool { return !p.OmitTitle }

// Resolve maps every field to a canonical option. Unknown values are rejected
// with a validation error rather than passed through.
func (p Preferences) Resolve() (Preferences, error) {
	def := DefaultPreferences()
	out := p

	var err error
	if out.Genre, err = resolveOption("genre", string(p.Genre), Genres, def.Genre); err != nil {
		return Preferences{}, err
	}
	if out.Style, err = resolveOption("style", string(p.Style), Styles, def.Style); err != nil {
		return Preferences{}, err
	}
	if out.Tone, err = resolveOption("tone", string(p.Tone), Tones, def.Tone); err != nil {
		return Preferences{}, err
	}
	if out.Language, err = resolveOption("language", string(p.Language), Languages, def.Language); err != nil {
		return Preferences{}, err
	}
	if out.Length, err = resolveOption("length", string(p.Length), Lengths, def.Length); err != nil {
		return Preferences{}, err
	}
	if out.Perspective, err = resolveOption("perspective", string(p.Perspective), Perspectives, def.Perspective); err != nil {
		return Preferences{}, err
	}
	if out.Audience, err = resolveOption("audience", string(p.Audience), Audiences, def.Audience); err != nil {
		return Preferences{}, err
	}

	switch {
	case p.Creativity == 0:
		out.Creativity = def.Creativity
	case p.Creativity < MinCreativity || p.Creativity > MaxCreativity:
		return Preferences{}, storyerr.Validation("preference.creativity", -1,
			fmt.Sprintf("creativity must be between %d and %d, got %d", MinCreativity, MaxCreativity, p.Creativity))
	}

	return out, nil
}

// Canonical renders resolved preferences as a stable string, used for cache keys.
func (p Preferences) Canonical() string {
	return fmt.Sprintf("genre=%s|style=%s|tone=%s|language=%s|length=%s|perspective=%s|audience=%s|creativity=%d|title=%t|chapters=%t|emojis=%t",
		p.Genre, p.Style, p.Tone, p.Language, p.Length, p.Perspective, p.Audience,
		p.Creativity, p.IncludeTitle(), p.Chapters, p.AllowEmojis)
}

func resolveOption[T ~string](field, value string, options []T, def T) (T, error) {
	if strings.TrimSpace(value) == "" {
		return def, nil
	}

	key := optionKey(value)
	for _, o := range options {
		if optionKey(string(o)) == key {
			return o, nil
		}
	}

	names := make([]string, len(options))
	for i, o := range options {
		names[i] = string(o)
	}
	var zero T
	return zero, storyerr.Validation("preference."+field, -1,
		fmt.Sprintf("unknown %s %q (choose one of: %s)", field, value, strings.Join(names, ", ")))
}

func optionKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '\'', '’':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}
