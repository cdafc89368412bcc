package face

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"notifface/internal/icon"
)

// IconPadding is the horizontal gap between icons in the row.
const IconPadding = 2

// Face selects the typeface used for the time text.
type Face int

const (
	FaceRegular Face = iota
	// FaceAmbient is the thin, low-fidelity face used on low-bit displays.
	FaceAmbient
)

func (f Face) String() string {
	if f == FaceAmbient {
		return "ambient"
	}
	return "regular"
}

// Layout ratios relative to the screen size (width).
const (
	textBaselineEmpty = 0.1
	textBaselineIcons = -0.033
	iconRowOffset     = 0.088
	jitterRange       = 0.177
)

// Rand is the jitter source. *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

type TextPlan struct {
	Text      string
	X         int // horizontal center
	Baseline  int
	Size      int
	Face      Face
	AntiAlias bool
	Color     color.NRGBA
}

type IconPlacement struct {
	Bitmap *icon.Bitmap
	Rect   image.Rectangle
}

// Plan is everything needed to draw one frame.
type Plan struct {
	Bounds     image.Rectangle
	Background color.NRGBA
	Text       TextPlan
	Icons      []IconPlacement
	Ambient    bool
	// Safe is true when the burn-in-safe set was chosen.
	Safe bool
	// Jitter is the offset applied to the icon row this frame.
	Jitter image.Point
}

type planInput struct {
	bounds  image.Rectangle
	now     time.Time
	state   *DisplayState
	ambient bool
	caps    Capabilities
	rnd     Rand
}

func round(f float64) int { return int(math.Round(f)) }

// TimeText formats t as H:MM on a 24-hour clock.
func TimeText(t time.Time) string {
	return fmt.Sprintf("%d:%02d", t.Hour(), t.Minute())
}

// MaxJitter is the jitter span for a screen of the given size.
func MaxJitter(size int) int { return round(float64(size) * jitterRange) }

func buildPlan(in planInput) Plan {
	w, h := in.bounds.Dx(), in.bounds.Dy()
	size := w

	pair := in.state.Pair
	p := Plan{
		Bounds:     in.bounds,
		Background: color.NRGBA{A: 255},
		Ambient:    in.ambient,
	}

	lowBit := in.ambient && in.caps.LowBitAmbient
	offset := textBaselineIcons
	if pair.Empty() {
		offset = textBaselineEmpty
	}
	p.Text = TextPlan{
		Text:      TimeText(in.now),
		X:         in.bounds.Min.X + w/2,
		Baseline:  in.bounds.Min.Y + round(float64(h)*0.5+float64(h)*offset),
		Size:      round(float64(size) / 3),
		Face:      FaceRegular,
		AntiAlias: !lowBit,
		Color:     color.NRGBA{R: 255, G: 255, B: 255, A: 255},
	}
	if lowBit {
		p.Text.Face = FaceAmbient
	}

	set := pair.Icons
	if in.ambient && in.caps.BurnInProtection {
		set = pair.Safe
		p.Safe = true
	}
	if len(set) == 0 {
		return p
	}

	step := icon.Size + IconPadding
	x := w/2 - len(set)*step/2
	y := h/2 + round(float64(size)*iconRowOffset)
	if in.ambient && in.rnd != nil {
		if m := MaxJitter(size); m > 0 {
			p.Jitter = image.Pt(in.rnd.IntN(m)-m/2, in.rnd.IntN(m))
		}
	}
	x += p.Jitter.X
	y += p.Jitter.Y

	p.Icons = make([]IconPlacement, len(set))
	for i, b := range set {
		x0 := in.bounds.Min.X + x + i*step
		y0 := in.bounds.Min.Y + y
		p.Icons[i] = IconPlacement{Bitmap: b, Rect: image.Rect(x0, y0, x0+icon.Size, y0+icon.Size)}
	}
	return p
}
