package icon

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func solid(c color.NRGBA) *Bitmap {
	b := New()
	draw.Draw(b.img, b.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return b
}

func noisy(seed uint8) *Bitmap {
	b := New()
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			b.img.SetNRGBA(x, y, color.NRGBA{R: uint8(x*5) + seed, G: uint8(y*3) ^ seed, B: uint8(x + y), A: uint8(128 + x)})
		}
	}
	return b
}

func TestBitmapEqual(t *testing.T) {
	t.Parallel()
	a := noisy(1)
	b := noisy(1)
	if !a.Equal(b) {
		t.Fatal("identical bitmaps should be equal")
	}
	b.img.SetNRGBA(47, 47, color.NRGBA{A: 1})
	if a.Equal(b) {
		t.Fatal("single pixel difference should break equality")
	}
	if a.Equal(nil) {
		t.Fatal("bitmap should not equal nil")
	}
}

func TestFromImageRejectsWrongSize(t *testing.T) {
	t.Parallel()
	_, err := FromImage(image.NewNRGBA(image.Rect(0, 0, 32, 48)))
	if !errors.Is(err, ErrBadSize) {
		t.Fatalf("err = %v, want ErrBadSize", err)
	}
}

func TestFromImageConvertsRGBA(t *testing.T) {
	t.Parallel()
	src := image.NewRGBA(image.Rect(10, 10, 10+Size, 10+Size))
	src.Set(10, 10, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	b, err := FromImage(src)
	if err != nil {
		t.Fatalf("FromImage: %v", err)
	}
	if got := b.At(0, 0); got != (color.NRGBA{R: 200, G: 100, B: 50, A: 255}) {
		t.Fatalf("At(0,0) = %v", got)
	}
}

func TestBurnInSafeMask(t *testing.T) {
	t.Parallel()
	src := noisy(7)
	safe := BurnInSafe(src)
	kept := 0
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			got := safe.At(x, y)
			if y%4 == 2*(x%2) {
				kept++
				if got != src.At(x, y) {
					t.Fatalf("(%d,%d) = %v, want %v", x, y, got, src.At(x, y))
				}
			} else if got != (color.NRGBA{}) {
				t.Fatalf("(%d,%d) = %v, want transparent", x, y, got)
			}
		}
	}
	if kept != Size*Size/4 {
		t.Fatalf("kept = %d, want %d", kept, Size*Size/4)
	}
}

func TestBurnInSafeDeterministicAndIdempotent(t *testing.T) {
	t.Parallel()
	src := solid(color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	a := BurnInSafe(src)
	b := BurnInSafe(src)
	if !a.Equal(b) {
		t.Fatal("transform should be deterministic")
	}
	if !BurnInSafe(a).Equal(a) {
		t.Fatal("applying the transform to its own output should be a no-op")
	}
}

func TestRasterizeFillsBounds(t *testing.T) {
	t.Parallel()
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	draw.Draw(src, src.Bounds(), image.NewUniform(color.NRGBA{G: 255, A: 255}), image.Point{}, draw.Src)

	b, err := Rasterize(ImageHandle{Img: src})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	for _, p := range []image.Point{{0, 0}, {47, 0}, {0, 47}, {47, 47}, {24, 24}} {
		if got := b.At(p.X, p.Y); got.G != 255 || got.A != 255 {
			t.Fatalf("At(%v) = %v, want opaque green", p, got)
		}
	}
}

func TestRasterizeDrawableFunc(t *testing.T) {
	t.Parallel()
	var seen image.Rectangle
	h := handleFunc(func() (Drawable, error) {
		return DrawableFunc(func(dst draw.Image, r image.Rectangle) { seen = r }), nil
	})
	if _, err := Rasterize(h); err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if seen != image.Rect(0, 0, Size, Size) {
		t.Fatalf("bounds = %v, want 48x48", seen)
	}
}

type handleFunc func() (Drawable, error)

func (f handleFunc) Resolve() (Drawable, error) { return f() }

func TestRasterizeAssetUnavailable(t *testing.T) {
	t.Parallel()
	cases := map[string]Handle{
		"nil":          nil,
		"missing file": FileHandle(filepath.Join(t.TempDir(), "nope.png")),
		"empty path":   FileHandle(" "),
		"empty image":  ImageHandle{},
	}
	for name, h := range cases {
		if _, err := Rasterize(h); !errors.Is(err, ErrAssetUnavailable) {
			t.Fatalf("%s: err = %v, want ErrAssetUnavailable", name, err)
		}
	}
}

func TestRasterizeFileHandle(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bell.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, solid(color.NRGBA{R: 9, G: 9, B: 9, A: 255}).Image()); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	b, err := Rasterize(FileHandle(path))
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if got := b.At(10, 10); got != (color.NRGBA{R: 9, G: 9, B: 9, A: 255}) {
		t.Fatalf("At(10,10) = %v", got)
	}
}
