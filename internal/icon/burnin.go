package icon

// BurnInMask reports whether pixel (x, y) survives the burn-in-safe transform.
// It keeps one pixel in four in a diagonal stripe pattern.
func BurnInMask(x, y int) bool {
	return y%4 == 2*(x%2)
}

// BurnInSafe returns a sparsified copy of b suitable for long static display.
// Pixels outside the mask are fully transparent; kept pixels are copied exactly.
func BurnInSafe(b *Bitmap) *Bitmap {
	out := New()
	if b == nil {
		return out
	}
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			if BurnInMask(x, y) {
				si := b.img.PixOffset(x, y)
				di := out.img.PixOffset(x, y)
				copy(out.img.Pix[di:di+4], b.img.Pix[si:si+4])
			}
		}
	}
	return out
}
