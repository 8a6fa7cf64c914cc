package library

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/reveal"
)

// Resize scales src to target according to mode.
//
// AspectFill covers the whole target and crops the overflow around the
// center; the result is exactly target. AspectFit keeps the whole image;
// the result is as large as fits inside target. Empty targets or sources
// yield a 1x1 image.
func Resize(src image.Image, target reveal.Size, mode reveal.ContentMode, scaler xdraw.Scaler) *image.NRGBA {
	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	if sw <= 0 || sh <= 0 || target.W < 1 || target.H < 1 {
		return image.NewNRGBA(image.Rect(0, 0, 1, 1))
	}

	var dst *image.NRGBA
	srcRect := sb

	switch mode {
	case reveal.AspectFit:
		scale := math.Min(target.W/sw, target.H/sh)
		w := max(1, int(math.Round(sw*scale)))
		h := max(1, int(math.Round(sh*scale)))
		dst = image.NewNRGBA(image.Rect(0, 0, w, h))
	default:
		w, h := int(math.Round(target.W)), int(math.Round(target.H))
		dst = image.NewNRGBA(image.Rect(0, 0, w, h))

		// Source window with the target's aspect ratio, centered.
		scale := math.Max(target.W/sw, target.H/sh)
		cw := min(sb.Dx(), max(1, int(math.Round(target.W/scale))))
		ch := min(sb.Dy(), max(1, int(math.Round(target.H/scale))))
		x0 := sb.Min.X + (sb.Dx()-cw)/2
		y0 := sb.Min.Y + (sb.Dy()-ch)/2
		srcRect = image.Rect(x0, y0, x0+cw, y0+ch)
	}

	scaler.Scale(dst, dst.Bounds(), src, srcRect, xdraw.Src, nil)
	return dst
}

// previewSize is the size of the degraded delivery: target divided by
// divisor, at least one pixel on each axis.
func previewSize(target reveal.Size, divisor int) reveal.Size {
	if divisor < 1 {
		divisor = 1
	}
	d := float64(divisor)
	return reveal.Sz(math.Max(1, math.Floor(target.W/d)), math.Max(1, math.Floor(target.H/d)))
}
