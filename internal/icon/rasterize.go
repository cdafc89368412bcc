package icon

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	xdraw "golang.org/x/image/draw"
)

var ErrAssetUnavailable = errors.New("icon: asset unavailable")

// Drawable paints itself into r on dst. How it fills r is up to the drawable.
type Drawable interface {
	Draw(dst draw.Image, r image.Rectangle)
}

// DrawableFunc adapts a function to Drawable.
type DrawableFunc func(dst draw.Image, r image.Rectangle)

func (f DrawableFunc) Draw(dst draw.Image, r image.Rectangle) { f(dst, r) }

// Handle resolves to a Drawable. Resolve fails with ErrAssetUnavailable when
// the underlying asset cannot be loaded.
type Handle interface {
	Resolve() (Drawable, error)
}

// ImageDrawable stretches an image over the target rectangle.
type ImageDrawable struct {
	Img image.Image
}

func (d ImageDrawable) Draw(dst draw.Image, r image.Rectangle) {
	if d.Img == nil {
		return
	}
	xdraw.CatmullRom.Scale(dst, r, d.Img, d.Img.Bounds(), xdraw.Over, nil)
}

// ImageHandle is an in-memory asset.
type ImageHandle struct {
	Img image.Image
}

func (h ImageHandle) Resolve() (Drawable, error) {
	if h.Img == nil || h.Img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrAssetUnavailable)
	}
	return ImageDrawable{Img: h.Img}, nil
}

// FileHandle is an image file on disk (png, jpeg or gif).
type FileHandle string

func (h FileHandle) Resolve() (Drawable, error) {
	path := strings.TrimSpace(string(h))
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrAssetUnavailable)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrAssetUnavailable, path, err)
	}
	return ImageHandle{Img: img}.Resolve()
}

// Rasterize draws the asset behind h into a fresh Size x Size bitmap.
func Rasterize(h Handle) (*Bitmap, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil handle", ErrAssetUnavailable)
	}
	d, err := h.Resolve()
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: nil drawable", ErrAssetUnavailable)
	}
	b := New()
	d.Draw(b.img, b.img.Bounds())
	return b, nil
}
