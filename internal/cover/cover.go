// Package cover renders story preview images. A cover is a pure function of
// title, theme, mood and length, encoded as lossless WebP.
package cover

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"math/rand/v2"
	"strings"
	"unicode"

	"github.com/HugoSmits86/nativewebp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"storyteller/internal/domain"
	"storyteller/internal/pipeline"
)

const (
	ContentType = "image/webp"

	defaultWidth  = 640
	defaultHeight = 400
	captionScale  = 3
)

// palettes holds sky, horizon and accent colours per mood.
var palettes = map[domain.Mood][3]color.RGBA{
	domain.MoodCalm:        {{R: 0x1b, G: 0x2a, B: 0x4a, A: 0xff}, {R: 0x4a, G: 0x6f, B: 0x8f, A: 0xff}, {R: 0xf2, G: 0xe6, B: 0xb8, A: 0xff}},
	domain.MoodCheerful:    {{R: 0x2e, G: 0x5e, B: 0xaa, A: 0xff}, {R: 0xf6, G: 0xae, B: 0x2d, A: 0xff}, {R: 0xff, G: 0xf4, B: 0xd6, A: 0xff}},
	domain.MoodAdventurous: {{R: 0x24, G: 0x1e, B: 0x4e, A: 0xff}, {R: 0xb8, G: 0x4a, B: 0x62, A: 0xff}, {R: 0xff, G: 0xd1, B: 0x66, A: 0xff}},
	domain.MoodSleepy:      {{R: 0x0f, G: 0x14, B: 0x2b, A: 0xff}, {R: 0x3b, G: 0x3f, B: 0x6e, A: 0xff}, {R: 0xd8, G: 0xd4, B: 0xf2, A: 0xff}},
}

var starCount = map[domain.Length]int{
	domain.LengthShort:  24,
	domain.LengthMedium: 48,
	domain.LengthLong:   80,
}

// Builder implements pipeline.CoverBuilder.
type Builder struct {
	width  int
	height int
}

func NewBuilder() *Builder {
	return &Builder{width: defaultWidth, height: defaultHeight}
}

// BuildCover renders and encodes the cover.
func (b *Builder) BuildCover(ctx context.Context, req pipeline.CoverRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img := b.Render(req)
	var buf bytes.Buffer
	if err := nativewebp.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, errors.New("cover: encoder produced no data")
	}
	return buf.Bytes(), nil
}

// Render draws the cover without encoding it.
func (b *Builder) Render(req pipeline.CoverRequest) *image.RGBA {
	seed := seedFor(req)
	rng := rand.New(rand.NewPCG(seed[0], seed[1]))
	pal, ok := palettes[req.Mood]
	if !ok {
		pal = palettes[domain.MoodCalm]
	}
	sky := shift(pal[0], rng)
	horizon := shift(pal[1], rng)
	accent := pal[2]

	img := image.NewRGBA(image.Rect(0, 0, b.width, b.height))
	for y := 0; y < b.height; y++ {
		c := lerp(sky, horizon, float64(y)/float64(b.height-1))
		for x := 0; x < b.width; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	stars := starCount[req.Length]
	if stars == 0 {
		stars = starCount[domain.LengthShort]
	}
	for i := 0; i < stars; i++ {
		x := rng.IntN(b.width)
		y := rng.IntN(b.height * 2 / 3)
		size := 1 + rng.IntN(2)
		fillRect(img, image.Rect(x, y, x+size, y+size), accent)
	}

	moonR := b.height / 10
	cx := b.width/5 + rng.IntN(b.width*3/5)
	cy := b.height/6 + rng.IntN(b.height/6)
	fillCircle(img, cx, cy, moonR, accent)

	hills := lerp(horizon, color.RGBA{A: 0xff}, 0.6)
	for x := 0; x < b.width; x++ {
		top := b.height*3/4 + int(float64(b.height/14)*wave(x, b.width, seed[2]))
		fillRect(img, image.Rect(x, top, x+1, b.height), hills)
	}

	drawCaption(img, captionLines(req.Title, b.width/(7*captionScale)-2), accent)
	return img
}

// seedFor hashes the four inputs the cover depends on.
func seedFor(req pipeline.CoverRequest) [3]uint64 {
	h := sha256.Sum256([]byte(strings.Join([]string{
		strings.TrimSpace(req.Title),
		strings.TrimSpace(req.Theme),
		string(req.Mood),
		string(req.Length),
	}, "|")))
	return [3]uint64{
		binary.BigEndian.Uint64(h[0:8]),
		binary.BigEndian.Uint64(h[8:16]),
		binary.BigEndian.Uint64(h[16:24]),
	}
}

func shift(c color.RGBA, rng *rand.Rand) color.RGBA {
	d := func(v uint8) uint8 {
		n := int(v) + rng.IntN(33) - 16
		return uint8(max(0, min(255, n)))
	}
	return color.RGBA{R: d(c.R), G: d(c.G), B: d(c.B), A: 0xff}
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t) }
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff}
}

// wave is a cheap deterministic hill profile in [-1, 1].
func wave(x, width int, seed uint64) float64 {
	period := float64(width) / float64(2+seed%3)
	phase := float64(seed % uint64(width))
	t := (float64(x) + phase) / period
	frac := t - float64(int(t))
	return 4*frac*(1-frac)*2 - 1
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func fillCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y <= radius*radius {
				if p := image.Pt(cx+x, cy+y); p.In(img.Bounds()) {
					img.SetRGBA(p.X, p.Y, c)
				}
			}
		}
	}
}

// drawCaption renders the title with the 7x13 bitmap face on a small canvas
// and scales it up onto the bottom of the cover.
func drawCaption(img *image.RGBA, lines []string, c color.RGBA) {
	if len(lines) == 0 {
		return
	}
	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil()
	width := img.Bounds().Dx() / captionScale
	canvas := image.NewRGBA(image.Rect(0, 0, width, lineHeight*len(lines)+4))
	d := &font.Drawer{Dst: canvas, Src: image.NewUniform(c), Face: face}
	for i, line := range lines {
		advance := d.MeasureString(line).Ceil()
		d.Dot = fixed.P((width-advance)/2, face.Metrics().Ascent.Ceil()+i*lineHeight+2)
		d.DrawString(line)
	}

	dstH := canvas.Bounds().Dy() * captionScale
	bottom := img.Bounds().Dy() - img.Bounds().Dy()/16
	dst := image.Rect(0, bottom-dstH, img.Bounds().Dx(), bottom)
	xdraw.NearestNeighbor.Scale(img, dst, canvas, canvas.Bounds(), xdraw.Over, nil)
}

// captionLines folds the title to ASCII for the bitmap face and wraps it at
// maxChars, keeping at most two lines.
func captionLines(title string, maxChars int) []string {
	words := strings.Fields(FoldASCII(title))
	if len(words) == 0 || maxChars <= 0 {
		return nil
	}
	var lines []string
	current := ""
	for _, w := range words {
		if len(w) > maxChars {
			w = w[:maxChars]
		}
		switch {
		case current == "":
			current = w
		case len(current)+1+len(w) <= maxChars:
			current += " " + w
		default:
			lines = append(lines, current)
			current = w
		}
	}
	lines = append(lines, current)
	if len(lines) > 2 {
		lines = lines[:2]
		if len(lines[1])+3 > maxChars {
			lines[1] = lines[1][:max(0, maxChars-3)]
		}
		lines[1] += "..."
	}
	return lines
}

// FoldASCII strips diacritics and drops anything the bitmap face cannot draw.
func FoldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range folded {
		if r < 0x20 || r > 0x7e {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

var _ pipeline.CoverBuilder = (*Builder)(nil)
