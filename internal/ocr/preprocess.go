package ocr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sort"

	"github.com/disintegration/imaging"
)

const (
	thresholdBlock  = 11
	thresholdOffset = 2
	medianRadius    = 1
	sharpenSigma    = 1.0

	separatorHeight = 12
	separatorMargin = 24
)

// Preprocess binarizes a rendered page for OCR: grayscale, adaptive mean
// threshold, 3x3 median, then unsharp.
func Preprocess(img image.Image) *image.NRGBA {
	gray := imaging.Grayscale(img)
	bin := adaptiveThreshold(gray, thresholdBlock, thresholdOffset)
	bin = medianFilter(bin, medianRadius)
	return imaging.Sharpen(bin, sharpenSigma)
}

// adaptiveThreshold sets a pixel white when it is brighter than the mean of
// its block minus offset. Uses a summed-area table over the red channel.
func adaptiveThreshold(src *image.NRGBA, block, offset int) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	integral := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			row += int64(src.Pix[y*src.Stride+x*4])
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + row
		}
	}

	half := block / 2
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-half), min(h, y+half+1)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-half), min(w, x+half+1)
			sum := integral[y1*(w+1)+x1] - integral[y0*(w+1)+x1] - integral[y1*(w+1)+x0] + integral[y0*(w+1)+x0]
			mean := sum / int64((y1-y0)*(x1-x0))
			v := uint8(0)
			if int64(src.Pix[y*src.Stride+x*4]) > mean-int64(offset) {
				v = 255
			}
			i := y*dst.Stride + x*4
			dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = v, v, v, 255
		}
	}
	return dst
}

func medianFilter(src *image.NRGBA, radius int) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	window := make([]uint8, 0, (2*radius+1)*(2*radius+1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -radius; dy <= radius; dy++ {
				yy := min(max(y+dy, 0), h-1)
				for dx := -radius; dx <= radius; dx++ {
					xx := min(max(x+dx, 0), w-1)
					window = append(window, src.Pix[yy*src.Stride+xx*4])
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			v := window[len(window)/2]
			i := y*dst.Stride + x*4
			dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = v, v, v, 255
		}
	}
	return dst
}

// Concat stacks pages vertically on white, separated by a thick black rule.
func Concat(pages []image.Image) *image.NRGBA {
	width, height := 0, 0
	for i, p := range pages {
		width = max(width, p.Bounds().Dx())
		height += p.Bounds().Dy()
		if i > 0 {
			height += separatorHeight + 2*separatorMargin
		}
	}
	canvas := imaging.New(width, height, color.White)
	rule := imaging.New(width, separatorHeight, color.Black)
	y := 0
	for i, p := range pages {
		if i > 0 {
			y += separatorMargin
			canvas = imaging.Paste(canvas, rule, image.Pt(0, y))
			y += separatorHeight + separatorMargin
		}
		canvas = imaging.Paste(canvas, p, image.Pt(0, y))
		y += p.Bounds().Dy()
	}
	return canvas
}

// EncodePNG encodes img losslessly at best compression.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
