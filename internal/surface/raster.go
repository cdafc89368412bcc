// Package surface paints face plans into images and writes them out as PNG
// frames.
package surface

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"notifface/internal/face"
)

// alphaThreshold is the coverage at which a pixel is lit when anti-aliasing
// is off.
const alphaThreshold = 0x80

type faceKey struct {
	face face.Face
	size int
}

// Raster renders plans. It caches font faces per (face, size) and is safe
// for concurrent use.
type Raster struct {
	regular *opentype.Font
	mono    *opentype.Font

	mu    sync.Mutex
	faces map[faceKey]font.Face
}

func NewRaster() (*Raster, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("surface: parse regular font: %w", err)
	}
	mono, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("surface: parse mono font: %w", err)
	}
	return &Raster{regular: regular, mono: mono, faces: map[faceKey]font.Face{}}, nil
}

// Render paints p into a new image the size of p.Bounds.
func (r *Raster) Render(p face.Plan) (*image.RGBA, error) {
	dst := image.NewRGBA(p.Bounds)
	draw.Draw(dst, dst.Bounds(), image.NewUniform(p.Background), image.Point{}, draw.Src)

	if err := r.drawText(dst, p.Text); err != nil {
		return nil, err
	}
	for _, ic := range p.Icons {
		if ic.Bitmap == nil {
			continue
		}
		src := ic.Bitmap.Image()
		draw.Draw(dst, ic.Rect, src, src.Bounds().Min, draw.Over)
	}
	return dst, nil
}

func (r *Raster) drawText(dst *image.RGBA, t face.TextPlan) error {
	if t.Text == "" || t.Size <= 0 {
		return nil
	}
	ff, err := r.face(t.Face, t.Size)
	if err != nil {
		return err
	}

	// Draw coverage into a mask first so anti-aliasing can be stripped.
	mask := image.NewAlpha(dst.Bounds())
	d := font.Drawer{Dst: mask, Src: image.Opaque, Face: ff}
	adv := d.MeasureString(t.Text)
	d.Dot = fixed.Point26_6{X: fixed.I(t.X) - adv/2, Y: fixed.I(t.Baseline)}
	d.DrawString(t.Text)

	if !t.AntiAlias {
		threshold(mask)
	}
	draw.DrawMask(dst, dst.Bounds(), image.NewUniform(t.Color), image.Point{}, mask, dst.Bounds().Min, draw.Over)
	return nil
}

func threshold(m *image.Alpha) {
	for i, a := range m.Pix {
		if a >= alphaThreshold {
			m.Pix[i] = 0xff
		} else {
			m.Pix[i] = 0
		}
	}
}

func (r *Raster) face(f face.Face, size int) (font.Face, error) {
	k := faceKey{face: f, size: size}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ff, ok := r.faces[k]; ok {
		return ff, nil
	}
	src := r.regular
	if f == face.FaceAmbient {
		src = r.mono
	}
	ff, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("surface: %s face size %d: %w", f, size, err)
	}
	r.faces[k] = ff
	return ff, nil
}

func (r *Raster) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, ff := range r.faces {
		_ = ff.Close()
		delete(r.faces, k)
	}
	return nil
}

// Lit counts pixels in img that differ from bg. Used by health checks and tests.
func Lit(img image.Image, bg color.Color) int {
	br, bgG, bb, ba := bg.RGBA()
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if r != br || g != bgG || bl != bb || a != ba {
				n++
			}
		}
	}
	return n
}
