package story

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storyteller/internal/domain"
	"storyteller/internal/pipeline"
)

// StaticWriter is the offline provider used when no API key is configured.
// Output is a deterministic function of the request, and the avoid list is
// honoured when choosing the conflict.
type StaticWriter struct{}

func NewStaticWriter() *StaticWriter { return &StaticWriter{} }

const staticModel = "static-v1"

var staticConflicts = []string{
	"vihar",
	"elveszett kincs",
	"eltévedt barát",
	"sötéttől félés",
	"elromlott híd",
}

var staticTones = map[domain.Mood]string{
	domain.MoodCalm:        "nyugodt",
	domain.MoodCheerful:    "vidám",
	domain.MoodAdventurous: "izgalmas",
	domain.MoodSleepy:      "álmos",
}

var staticParagraphs = map[domain.Length]int{
	domain.LengthShort:  1,
	domain.LengthMedium: 2,
	domain.LengthLong:   3,
}

var (
	settingPattern  = regexp.MustCompile(`hol nem volt, az? (.+?) mélyén`)
	conflictPattern = regexp.MustCompile(`Egy napon (?:az? )?(.+?) kavarta fel`)
	tonePattern     = regexp.MustCompile(`Ez a mese (.+?) hangulatú`)
)

func (s *StaticWriter) Name() string { return staticProviderName }

func (s *StaticWriter) GenerateStory(ctx context.Context, req pipeline.GenerationRequest) (*pipeline.GenerationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	setting := strings.ToLower(coalesce(req.Theme, "erdő"))
	conflict := pickConflict(setting, req)
	tone := coalesce(staticTones[req.Mood], "nyugodt")

	sb := &strings.Builder{}
	fmt.Fprintf(sb, "%s titka\n\n", cases.Title(language.Hungarian).String(setting))
	fmt.Fprintf(sb, "Egyszer volt, hol nem volt, %s %s mélyén élt egy kíváncsi gyerek, aki %d éves volt. ", article(setting), setting, req.ChildAge)
	fmt.Fprintf(sb, "Egy napon %s %s kavarta fel a napjait. ", article(conflict), conflict)
	fmt.Fprintf(sb, "Ez a mese %s hangulatú.\n\n", tone)
	paragraphs := staticParagraphs[req.Length]
	if paragraphs == 0 {
		paragraphs = 1
	}
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(sb, "Lépésről lépésre haladt, és a %d. próbát is kiállta, mert nem adta fel.\n\n", i+1)
	}
	if lesson := strings.TrimSpace(req.Lesson); lesson != "" {
		fmt.Fprintf(sb, "Aznap megtanulta: %s.\n\n", lesson)
	}
	sb.WriteString("Aztán hazaért, bebújt a takaró alá, és mélyen elaludt.")

	text := sb.String()
	prompt := buildStoryPrompt(req)
	return &pipeline.GenerationResult{
		Text:  text,
		Model: staticModel,
		Usage: domain.TokenUsage{
			InputTokens:  countWords(prompt),
			OutputTokens: countWords(text),
		},
	}, nil
}

func (s *StaticWriter) ExtractMeta(ctx context.Context, text string) (*pipeline.MetaResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	title, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	meta := pipeline.StoryMeta{
		Title:    strings.TrimSpace(title),
		Setting:  firstMatch(settingPattern, text),
		Conflict: firstMatch(conflictPattern, text),
		Tone:     firstMatch(tonePattern, text),
	}
	if meta.Setting != "" && meta.Conflict != "" {
		meta.Summary = fmt.Sprintf("Esti mese %s %s mélyéről, ahol %s %s próbára teszi a főhőst.",
			article(meta.Setting), meta.Setting, article(meta.Conflict), meta.Conflict)
	}
	return &pipeline.MetaResult{
		Meta:  meta,
		Model: staticModel,
		Usage: domain.TokenUsage{
			InputTokens:  countWords(text),
			OutputTokens: countWords(meta.Title + " " + meta.Summary),
		},
	}, nil
}

// pickConflict starts from a theme-seeded position and walks the conflict
// list until it finds a pair that is not on the avoid list.
func pickConflict(setting string, req pipeline.GenerationRequest) string {
	avoid := make(map[domain.AvoidPair]struct{}, len(req.Avoid))
	for _, p := range req.Avoid {
		avoid[domain.AvoidPair{Setting: strings.ToLower(p.Setting), Conflict: strings.ToLower(p.Conflict)}] = struct{}{}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(setting + "|" + string(req.Mood)))
	start := int(h.Sum32() % uint32(len(staticConflicts)))
	for i := range staticConflicts {
		candidate := staticConflicts[(start+i)%len(staticConflicts)]
		if _, taken := avoid[domain.AvoidPair{Setting: setting, Conflict: candidate}]; !taken {
			return candidate
		}
	}
	return staticConflicts[start]
}

func article(word string) string {
	r, _ := utf8.DecodeRuneInString(strings.ToLower(word))
	if strings.ContainsRune("aáeéiíoóöőuúüű", r) {
		return "az"
	}
	return "a"
}

func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

var (
	_ pipeline.TextGenerator = (*StaticWriter)(nil)
	_ pipeline.MetaExtractor = (*StaticWriter)(nil)
)
