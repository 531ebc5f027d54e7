package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Yates-Labs/storyimager/internal/narrative"
	"github.com/Yates-Labs/storyimager/internal/orchestrator"
	"github.com/Yates-Labs/storyimager/internal/story"
	"github.com/chzyer/readline"
)

const sessionHelp = `Commands:
  set <preference> <value>   e.g. "set genre horror", "set chapters on"
  show                       print the current preferences
  again                      generate with the current preferences (same input is served from cache)
  export <path>              export the last story
  quit                       end the session`

// runSession generates a story, then lets the user adjust preferences and
// regenerate until they quit.
func runSession(ctx context.Context, out io.Writer, gen orchestrator.Generator, req orchestrator.Request) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "story> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdout:          out,
	})
	if err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}
	defer func() {
		_ = rl.Close()
	}()

	var last *story.Story
	generate := func() {
		s, err := gen.Generate(ctx, req)
		if err != nil {
			fmt.Fprintln(out, renderError(err))
			return
		}
		last = s
		fmt.Fprintln(out, renderStory(s))
	}

	generate()
	fmt.Fprintln(out, metaStyle.Render(sessionHelp))

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "quit", "exit":
			return nil
		case "again", "generate":
			generate()
		case "show":
			fmt.Fprintln(out, summaryStyle.Render(describePreferences(req.Preferences)))
		case "set":
			if len(fields) < 3 {
				fmt.Fprintln(out, errorStyle.Render("usage: set <preference> <value>"))
				continue
			}
			updated, err := setPreference(req.Preferences, fields[1], strings.Join(fields[2:], " "))
			if err != nil {
				fmt.Fprintln(out, renderError(err))
				continue
			}
			req.Preferences = updated
			generate()
		case "export":
			if last == nil || len(fields) < 2 {
				fmt.Fprintln(out, errorStyle.Render("usage: export <path> (after a story was generated)"))
				continue
			}
			if err := handleExport(out, last, fields[1]); err != nil {
				fmt.Fprintln(out, renderError(err))
			}
		default:
			fmt.Fprintln(out, metaStyle.Render(sessionHelp))
		}
	}
}

// setPreference returns prefs with one field changed and checks the result.
func setPreference(prefs narrative.Preferences, name, value string) (narrative.Preferences, error) {
	switch strings.ToLower(name) {
	case "genre":
		prefs.Genre = narrative.Genre(value)
	case "style":
		prefs.Style = narrative.Style(value)
	case "tone":
		prefs.Tone = narrative.Tone(value)
	case "language":
		prefs.Language = narrative.Language(value)
	case "length":
		prefs.Length = narrative.Length(value)
	case "perspective":
		prefs.Perspective = narrative.Perspective(value)
	case "audience":
		prefs.Audience = narrative.Audience(value)
	case "creativity":
		n, err := strconv.Atoi(value)
		if err != nil {
			return prefs, fmt.Errorf("creativity must be a number: %w", err)
		}
		prefs.Creativity = n
	case "chapters", "title", "emojis":
		on, err := parseSwitch(value)
		if err != nil {
			return prefs, err
		}
		switch strings.ToLower(name) {
		case "chapters":
			prefs.Chapters = on
		case "title":
			prefs.OmitTitle = !on
		case "emojis":
			prefs.AllowEmojis = on
		}
	default:
		return prefs, fmt.Errorf("unknown preference %q", name)
	}

	if _, err := prefs.Resolve(); err != nil {
		return prefs, err
	}
	return prefs, nil
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", value)
	}
}

func describePreferences(p narrative.Preferences) string {
	resolved, err := p.Resolve()
	if err != nil {
		resolved = p
	}
	return strings.ReplaceAll(resolved.Canonical(), "|", "  ")
}
