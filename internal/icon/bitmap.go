package icon

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
)

// Size is the side length of every icon bitmap in pixels.
const Size = 48

var ErrBadSize = errors.New("icon: bitmap must be 48x48")

// Bitmap is a Size x Size non-premultiplied RGBA raster.
//
// A Bitmap is treated as immutable once built; Image exposes the backing
// store for drawing and must not be written to.
type Bitmap struct {
	img *image.NRGBA
}

// New returns a fully transparent bitmap.
func New() *Bitmap {
	return &Bitmap{img: image.NewNRGBA(image.Rect(0, 0, Size, Size))}
}

// FromImage copies img into a new bitmap. The image must be exactly Size x Size.
func FromImage(img image.Image) (*Bitmap, error) {
	if img == nil {
		return nil, ErrBadSize
	}
	r := img.Bounds()
	if r.Dx() != Size || r.Dy() != Size {
		return nil, fmt.Errorf("%w: got %dx%d", ErrBadSize, r.Dx(), r.Dy())
	}
	b := New()
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < Size; y++ {
			so := src.PixOffset(r.Min.X, r.Min.Y+y)
			copy(b.img.Pix[y*b.img.Stride:y*b.img.Stride+Size*4], src.Pix[so:so+Size*4])
		}
		return b, nil
	}
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			c := color.NRGBAModel.Convert(img.At(r.Min.X+x, r.Min.Y+y)).(color.NRGBA)
			b.img.SetNRGBA(x, y, c)
		}
	}
	return b, nil
}

// Image returns the backing raster. Callers must treat it as read-only.
func (b *Bitmap) Image() *image.NRGBA { return b.img }

func (b *Bitmap) At(x, y int) color.NRGBA { return b.img.NRGBAAt(x, y) }

// Equal reports an exact pixel-for-pixel match.
func (b *Bitmap) Equal(o *Bitmap) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b == o {
		return true
	}
	for y := 0; y < Size; y++ {
		ra := b.img.Pix[y*b.img.Stride : y*b.img.Stride+Size*4]
		rb := o.img.Pix[y*o.img.Stride : y*o.img.Stride+Size*4]
		if !bytes.Equal(ra, rb) {
			return false
		}
	}
	return true
}

// Pair is the icon set together with its burn-in-safe counterpart.
// Icons[i] and Safe[i] always describe the same notification icon.
type Pair struct {
	Icons []*Bitmap
	Safe  []*Bitmap
}

func (p Pair) Len() int { return len(p.Icons) }

func (p Pair) Empty() bool { return len(p.Icons) == 0 }

// Valid reports whether both sides have the same length and no nil entries.
func (p Pair) Valid() bool {
	if len(p.Icons) != len(p.Safe) {
		return false
	}
	for i := range p.Icons {
		if p.Icons[i] == nil || p.Safe[i] == nil {
			return false
		}
	}
	return true
}

// Equal compares both sides element-wise by pixels.
func (p Pair) Equal(o Pair) bool {
	if len(p.Icons) != len(o.Icons) || len(p.Safe) != len(o.Safe) {
		return false
	}
	for i := range p.Icons {
		if !p.Icons[i].Equal(o.Icons[i]) {
			return false
		}
	}
	for i := range p.Safe {
		if !p.Safe[i].Equal(o.Safe[i]) {
			return false
		}
	}
	return true
}
