package story

import (
	"encoding/json"
	"fmt"
	"strings"

	"storyteller/internal/domain"
	"storyteller/internal/pipeline"
)

const storySystemPrompt = "Esti meséket írsz kisgyerekeknek magyarul. Csak a mese szövegét add vissza: az első sor a cím, utána bekezdések."

const metaSystemPrompt = "You extract metadata from Hungarian bedtime stories and only respond with valid JSON."

var lengthGuide = map[domain.Length]string{
	domain.LengthShort:  "about 250 words",
	domain.LengthMedium: "about 500 words",
	domain.LengthLong:   "about 900 words",
}

var moodGuide = map[domain.Mood]string{
	domain.MoodCalm:        "calm and soothing",
	domain.MoodCheerful:    "cheerful and playful",
	domain.MoodAdventurous: "adventurous but never scary",
	domain.MoodSleepy:      "slow, dreamy and sleepy",
}

func buildStoryPrompt(req pipeline.GenerationRequest) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Write a bedtime story in Hungarian for a %d year old child. ", req.ChildAge)
	fmt.Fprintf(sb, "Theme: %q. Mood: %s. Length: %s.", req.Theme, coalesce(moodGuide[req.Mood], string(req.Mood)), coalesce(lengthGuide[req.Length], string(req.Length)))
	if lesson := strings.TrimSpace(req.Lesson); lesson != "" {
		fmt.Fprintf(sb, " Gently weave in this lesson: %q.", lesson)
	}
	if len(req.Avoid) > 0 {
		// Marshal errors are impossible for a slice of string pairs.
		raw, _ := json.Marshal(req.Avoid)
		fmt.Fprintf(sb, " Recent stories for this child already used these setting and conflict pairs, do not reuse any of them: %s.", raw)
	}
	sb.WriteString(" End with the child falling asleep.")
	return sb.String()
}

func buildMetaPrompt(text string) string {
	sb := &strings.Builder{}
	sb.WriteString("Read the story below and respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"title":string,"summary":string,"setting":string,"conflict":string,"tone":string}`)
	sb.WriteString(". Keep the story's own title, write a one sentence summary, and name the setting, the central conflict and the tone with one or two Hungarian words each.\n\n")
	sb.WriteString(text)
	return sb.String()
}

func parseMeta(raw string) (pipeline.StoryMeta, error) {
	meta, err := parseModelPayload[pipeline.StoryMeta](raw)
	if err != nil {
		return pipeline.StoryMeta{}, err
	}
	return pipeline.StoryMeta{
		Title:    strings.TrimSpace(meta.Title),
		Summary:  strings.TrimSpace(meta.Summary),
		Setting:  strings.TrimSpace(meta.Setting),
		Conflict: strings.TrimSpace(meta.Conflict),
		Tone:     strings.TrimSpace(meta.Tone),
	}, nil
}
