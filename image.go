package ptiff

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// ReadRegionImage reads r from a page into an image.Image whose type
// follows the page layout: Gray or Gray16 for one sample, NRGBA or NRGBA64
// otherwise.
func (f *File) ReadRegionImage(idx int, r Rect) (image.Image, error) {
	d, err := f.Descriptor(idx)
	if err != nil {
		return nil, err
	}
	switch d.BitsPerSample {
	case 8:
		ras, err := ReadRegion[uint8](f, idx, r)
		if err != nil {
			return nil, err
		}
		return ras.Image(d.Photometric), nil
	case 16:
		ras, err := ReadRegion[uint16](f, idx, r)
		if err != nil {
			return nil, err
		}
		return ras.Image(d.Photometric), nil
	default:
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedLayout, d.BitsPerSample)
	}
}

// Image converts the raster to an image.Image. One sample is gray, two are
// gray and alpha, three are RGB and four are RGBA. A MinIsWhite page is
// inverted.
func (r *Raster[T]) Image(photometric uint16) image.Image {
	wide := sampleBits[T]() == 16
	rect := image.Rect(0, 0, r.Width, r.Height)
	peak := uint32(^T(0))

	value := func(i int) uint16 {
		v := uint32(r.Pix[i])
		if photometric == PhotometricMinIsWhite {
			v = peak - v
		}
		if !wide {
			v |= v << 8
		}
		return uint16(v)
	}

	if r.Samples == 1 {
		if wide {
			img := image.NewGray16(rect)
			for i := range r.Pix {
				img.Pix[2*i] = uint8(value(i) >> 8)
				img.Pix[2*i+1] = uint8(value(i))
			}
			return img
		}
		img := image.NewGray(rect)
		for i := range r.Pix {
			img.Pix[i] = uint8(value(i) >> 8)
		}
		return img
	}

	var img draw.Image
	if wide {
		img = image.NewNRGBA64(rect)
	} else {
		img = image.NewNRGBA(rect)
	}
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			i := r.Index(x, y, 0)
			c := color.NRGBA64{A: 0xffff}
			switch r.Samples {
			case 2:
				c.R, c.G, c.B, c.A = value(i), value(i), value(i), uint16(uint32(r.Pix[i+1])*0xffff/peak)
			default:
				c.R, c.G, c.B = value(i), value(i+1), value(i+2)
				if r.Samples >= 4 {
					c.A = uint16(uint32(r.Pix[i+3]) * 0xffff / peak)
				}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// RasterFromImage converts img into an 8-bit raster. Gray images keep one
// sample, opaque images become RGB and translucent ones RGBA.
func RasterFromImage(img image.Image) *Raster[uint8] {
	b := img.Bounds()
	switch src := img.(type) {
	case *image.Gray:
		out := NewRaster[uint8](b.Dx(), b.Dy(), 1)
		for y := 0; y < b.Dy(); y++ {
			copy(out.Row(y), src.Pix[y*src.Stride:y*src.Stride+b.Dx()])
		}
		return out
	}

	samples := 3
	if !opaque(img) {
		samples = 4
	}
	out := NewRaster[uint8](b.Dx(), b.Dy(), samples)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := out.Index(x, y, 0)
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = c.R, c.G, c.B
			if samples == 4 {
				out.Pix[i+3] = c.A
			}
		}
	}
	return out
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
