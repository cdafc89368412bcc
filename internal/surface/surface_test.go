package surface

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"notifface/internal/face"
	"notifface/internal/icon"
)

var (
	black = color.NRGBA{A: 255}
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

func newRaster(t *testing.T) *Raster {
	t.Helper()
	r, err := NewRaster()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func textPlan(aa bool, f face.Face) face.Plan {
	return face.Plan{
		Bounds:     image.Rect(0, 0, 400, 400),
		Background: black,
		Text: face.TextPlan{
			Text: "12:34", X: 200, Baseline: 240, Size: 133,
			Face: f, AntiAlias: aa, Color: white,
		},
	}
}

func grays(img *image.RGBA) (lit, partial int) {
	for i := 0; i < len(img.Pix); i += 4 {
		switch v := img.Pix[i]; v {
		case 0:
		case 0xff:
			lit++
		default:
			partial++
		}
	}
	return lit, partial
}

func TestRenderTextAntiAlias(t *testing.T) {
	t.Parallel()
	r := newRaster(t)
	img, err := r.Render(textPlan(true, face.FaceRegular))
	if err != nil {
		t.Fatal(err)
	}
	lit, partial := grays(img)
	if lit == 0 || partial == 0 {
		t.Fatalf("anti-aliased text: lit=%d partial=%d, want both > 0", lit, partial)
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{A: 255}) {
		t.Fatalf("background = %v, want black", got)
	}
}

func TestRenderTextNoAntiAlias(t *testing.T) {
	t.Parallel()
	r := newRaster(t)
	for _, f := range []face.Face{face.FaceRegular, face.FaceAmbient} {
		img, err := r.Render(textPlan(false, f))
		if err != nil {
			t.Fatal(err)
		}
		lit, partial := grays(img)
		if lit == 0 {
			t.Fatalf("%s: no text drawn", f)
		}
		if partial != 0 {
			t.Fatalf("%s: %d partially lit pixels with anti-aliasing off", f, partial)
		}
	}
}

func TestRenderTextCentered(t *testing.T) {
	t.Parallel()
	r := newRaster(t)
	img, err := r.Render(textPlan(false, face.FaceRegular))
	if err != nil {
		t.Fatal(err)
	}
	minX, maxX, maxY := 400, -1, -1
	for y := 0; y < 400; y++ {
		for x := 0; x < 400; x++ {
			if img.RGBAAt(x, y).R == 0xff {
				minX, maxX, maxY = min(minX, x), max(maxX, x), max(maxY, y)
			}
		}
	}
	if mid := (minX + maxX) / 2; mid < 185 || mid > 215 {
		t.Fatalf("text spans x %d..%d, centre %d; want near 200", minX, maxX, mid)
	}
	if maxY > 245 {
		t.Fatalf("digits extend to y=%d, below the baseline", maxY)
	}
}

func TestRenderIcons(t *testing.T) {
	t.Parallel()
	src := image.NewNRGBA(image.Rect(0, 0, icon.Size, icon.Size))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+3] = 200, 255
	}
	bm, err := icon.FromImage(src)
	if err != nil {
		t.Fatal(err)
	}
	safe := icon.BurnInSafe(bm)
	rect := image.Rect(150, 235, 150+icon.Size, 235+icon.Size)
	p := face.Plan{
		Bounds:     image.Rect(0, 0, 400, 400),
		Background: black,
		Icons:      []face.IconPlacement{{Bitmap: safe, Rect: rect}},
	}
	img, err := newRaster(t).Render(p)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < icon.Size; y++ {
		for x := 0; x < icon.Size; x++ {
			got := img.RGBAAt(rect.Min.X+x, rect.Min.Y+y)
			want := color.RGBA{A: 255}
			if icon.BurnInMask(x, y) {
				want.R = 200
			}
			if got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
	if n := Lit(img, color.RGBA{A: 255}); n != icon.Size*icon.Size/4 {
		t.Fatalf("lit = %d, want %d", n, icon.Size*icon.Size/4)
	}
}

func TestWriteFrame(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "frame.png")
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	img.SetRGBA(3, 4, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	if err := WriteFrame(path, img); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(path, img); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if r, g, b, _ := got.At(3, 4).RGBA(); r>>8 != 1 || g>>8 != 2 || b>>8 != 3 {
		t.Fatalf("pixel = %v", got.At(3, 4))
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("dir has %d entries, want only the frame", len(entries))
	}
}
