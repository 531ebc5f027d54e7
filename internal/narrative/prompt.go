package narrative

import (
	"fmt"
	"strings"

	"github.com/Yates-Labs/storyimager/internal/imaging"
	"github.com/Yates-Labs/storyimager/internal/storyerr"
)

// Prompt is the complete model request: a fixed system framing, an
// instruction rendered from preferences, and the images in upload order.
type Prompt struct {
	System      string
	Instruction string
	Images      []imaging.Image

	// Temperature is derived from creativity; LLMConfig.Temperature overrides it.
	Temperature float32

	// Preferences are the resolved preferences the instruction was built from.
	Preferences Preferences
}

// ChapterHeadingFormat is the marker the model is asked to start chapters with.
const ChapterHeadingFormat = "## Chapter %d: <chapter title>"

const systemFraming = "You are an award-winning storyteller who writes original fiction inspired by photographs. " +
	"Ground every story in what is actually visible in the images you are given: the objects, the setting, " +
	"the people, the light and the mood. Never mention that you are looking at images or photographs; " +
	"the result must read as standalone fiction."

var lengthWords = map[Length]string{
	LengthShort:  "300-500 words",
	LengthMedium: "800-1200 words",
	LengthLong:   "1500+ words",
}

var chapterCounts = map[Length]string{
	LengthShort:  "2 to 3",
	LengthMedium: "3 to 4",
	LengthLong:   "4 to 6",
}

var genreGuidance = map[Genre]string{
	GenreFantasy:     "Introduce magic, wonder or mythical elements that grow naturally out of the scene.",
	GenreSciFi:       "Extrapolate plausible technology or future worlds from what the scene shows.",
	GenreRomance:     "Center the story on a developing emotional connection between characters.",
	GenreHorror:      "Build dread slowly and let ordinary details turn unsettling.",
	GenreMystery:     "Plant clues in the visual details and build toward a satisfying reveal.",
	GenreAdventure:   "Drive the story with a journey, a goal and obstacles to overcome.",
	GenreSliceOfLife: "Find meaning in everyday moments, small gestures and quiet observations.",
}

var styleGuidance = map[Style]string{
	StyleCinematic:     "Write in vivid, visual scenes, as if describing shots in a film.",
	StylePoetic:        "Use lyrical language, rhythm and imagery.",
	StyleDark:          "Use a brooding, shadowed voice.",
	StyleHumorous:      "Use wit, playful observations and comic timing.",
	StyleChildrensBook: "Use simple sentences, gentle repetition and warm imagery.",
	StyleEpic:          "Use a grand, sweeping voice with high stakes.",
	StyleMinimalist:    "Use spare, precise prose and leave room for implication.",
}

var toneGuidance = map[Tone]string{
	ToneLight:         "Keep the mood light and uplifting.",
	ToneEmotional:     "Let the characters' feelings carry the story.",
	ToneDramatic:      "Heighten tension and conflict.",
	ToneDark:          "Allow darker themes and an unresolved edge.",
	ToneInspirational: "Leave the reader hopeful and encouraged.",
}

var perspectiveGuidance = map[Perspective]string{
	PerspectiveFirstPerson:           "Narrate in the first person (\"I\").",
	PerspectiveThirdPersonLimited:    "Narrate in the third person, staying close to one character's thoughts.",
	PerspectiveThirdPersonOmniscient: "Narrate in the third person with access to every character's thoughts.",
}

var audienceGuidance = map[Audience]string{
	AudienceKids:   "Keep vocabulary simple and content gentle and age-appropriate for children.",
	AudienceTeens:  "Write for teenage readers: relatable characters and moderate intensity.",
	AudienceAdults: "Write for adult readers; mature themes are acceptable when they serve the story.",
}

var visualChecklist = []string{
	"OBJECTS: the notable things present",
	"SCENE: where this takes place",
	"MOOD: the atmosphere and emotion",
	"COLORS: the dominant palette",
	"TIME OF DAY: morning, dusk, night",
	"WEATHER: conditions, if visible",
	"COMPOSITION: what draws the eye",
	"ACTIVITY: what is happening or about to happen",
	"DETAILS: small, specific elements that make the scene unique",
}

// BuildPrompt renders the model request for images and prefs. It performs no
// I/O; identical inputs always produce an identical Prompt.
func BuildPrompt(images []imaging.Image, prefs Preferences) (*Prompt, error) {
	if len(images) == 0 {
		return nil, storyerr.Validation("count_empty", -1, "at least one image is required")
	}

	resolved, err := prefs.Resolve()
	if err != nil {
		return nil, err
	}

	attached := make([]imaging.Image, len(images))
	copy(attached, images)

	return &Prompt{
		System:      systemFraming,
		Instruction: assembleInstruction(len(images), resolved),
		Images:      attached,
		Temperature: creativityTemperature(resolved.Creativity),
		Preferences: resolved,
	}, nil
}

func assembleInstruction(imageCount int, p Preferences) string {
	var b strings.Builder

	b.WriteString("# Story Request\n\n")
	if imageCount == 1 {
		b.WriteString("Write an original story inspired by the attached image.\n\n")
	} else {
		b.WriteString(fmt.Sprintf("Write one original story inspired by the %d attached images. ", imageCount))
		b.WriteString("Treat them as connected moments of the same story, in the order given.\n\n")
	}

	b.WriteString(fmt.Sprintf("**Genre:** %s. %s\n", p.Genre, genreGuidance[p.Genre]))
	b.WriteString(fmt.Sprintf("**Writing style:** %s. %s\n", p.Style, styleGuidance[p.Style]))
	b.WriteString(fmt.Sprintf("**Tone:** %s. %s\n", p.Tone, toneGuidance[p.Tone]))
	b.WriteString(fmt.Sprintf("**Language:** Write the entire story in %s.\n", p.Language))
	b.WriteString(fmt.Sprintf("**Length:** %s (%s).\n", p.Length, lengthWords[p.Length]))
	b.WriteString(fmt.Sprintf("**Narrative perspective:** %s. %s\n", p.Perspective, perspectiveGuidance[p.Perspective]))
	b.WriteString(fmt.Sprintf("**Target audience:** %s. %s\n", p.Audience, audienceGuidance[p.Audience]))
	b.WriteString(fmt.Sprintf("**Creativity:** %d/10. Be %s.\n\n", p.Creativity, creativityDescription(p.Creativity)))

	b.WriteString("# Grounding in the Images\n\n")
	b.WriteString("Before writing, study each image for:\n")
	for _, item := range visualChecklist {
		b.WriteString("- " + item + "\n")
	}
	b.WriteString("\nWeave these concrete visual details into the story so a reader could recognise the scenes. ")
	b.WriteString("Do not list them; show them through action, setting and character.\n\n")

	b.WriteString("# Format\n\n")
	if p.IncludeTitle() {
		b.WriteString("- Start with a creative, engaging title on the first line, formatted as `# Title`.\n")
	} else {
		b.WriteString("- Do not include a title.\n")
	}
	if p.Chapters {
		b.WriteString(fmt.Sprintf("- Divide the story into %s chapters. Begin each chapter with a heading line of the form `%s`.\n",
			chapterCounts[p.Length], ChapterHeadingFormat))
	} else {
		b.WriteString("- Write continuous prose without chapter headings.\n")
	}
	if p.AllowEmojis {
		b.WriteString("- You may use emojis sparingly where they suit the tone.\n")
	} else {
		b.WriteString("- Do not use emojis.\n")
	}
	b.WriteString("- Output only the story. Do not add notes, commentary or explanations.\n")

	return b.String()
}

func creativityDescription(level int) string {
	switch {
	case level <= 3:
		return "literal and straightforward"
	case level <= 6:
		return "moderately creative with some imaginative elements"
	case level <= 8:
		return "highly creative and imaginative"
	default:
		return "extremely creative, imaginative, and unconventional"
	}
}

// creativityTemperature maps creativity 1..10 onto 0.2..1.1.
func creativityTemperature(level int) float32 {
	return 0.1 + float32(level)*0.1
}
