// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package ycbcr provides the single BT.601 RGB->YCbCr conversion
// used wherever a backend needs to fill a YUV background from an
// RGB color: the background-fill steps of backend/fastcv and
// backend/opencv, so the two do not drift into
// slightly different rounding behavior.
package ycbcr

// RGBToYCbCr converts 8-bit RGB to 8-bit BT.601 YCbCr, clamping each
// output channel to [0, 255].
func RGBToYCbCr(r, g, b uint8) (y, cb, cr uint8) {
	rf, gf, bf := float64(r), float64(g), float64(b)
	y = clamp(0.299*rf + 0.587*gf + 0.114*bf)
	cb = clamp(128 + 0.5*bf - 0.169*rf - 0.331*gf)
	cr = clamp(128 + 0.5*rf - 0.419*gf - 0.081*bf)
	return
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}
