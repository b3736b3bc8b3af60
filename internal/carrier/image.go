package carrier

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"

	"github.com/faanross/stegocrypt/internal/lsb"
	"github.com/faanross/stegocrypt/internal/spec"
	"golang.org/x/image/bmp"
)

// Image is an 8-bit-per-channel raster carrier stored as non-premultiplied
// RGBA. The alpha channel is carried through untouched.
type Image struct {
	Format Kind
	img    *image.NRGBA
}

// NewImage normalises src into a tightly packed NRGBA copy. 16-bit
// images are rejected since writing them back as 8-bit would change
// more than the LSBs.
func NewImage(src image.Image, format Kind) (*Image, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, ErrEmptyCarrier
	}

	switch src.(type) {
	case *image.RGBA64, *image.NRGBA64, *image.Gray16:
		return nil, fmt.Errorf("%w: 16-bit image", ErrUnsupportedFormat)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if n, ok := src.(*image.NRGBA); ok {
		rowLen := b.Dx() * 4
		for y := 0; y < b.Dy(); y++ {
			srcOff := n.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+rowLen], n.Pix[srcOff:srcOff+rowLen])
		}
	} else {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	}

	return &Image{Format: format, img: dst}, nil
}

// DecodeImage decodes a PNG or BMP image.
func DecodeImage(r io.Reader) (*Image, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	kind := Kind(format)
	if kind != KindPNG && kind != KindBMP {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return NewImage(src, kind)
}

// EncodeImage writes img as PNG or BMP. Both are lossless for 8-bit data.
func EncodeImage(w io.Writer, img *Image, kind Kind) error {
	switch kind {
	case KindPNG:
		return png.Encode(w, img.img)
	case KindBMP:
		return bmp.Encode(w, img.img)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, kind)
}

// NRGBA returns the underlying pixel buffer.
func (i *Image) NRGBA() *image.NRGBA { return i.img }

func (i *Image) Width() int  { return i.img.Rect.Dx() }
func (i *Image) Height() int { return i.img.Rect.Dy() }

// Slots exposes R, G, B of every pixel in scan order.
func (i *Image) Slots() lsb.Slots {
	return lsb.NewPixelSlots(i.img.Pix, 4)
}

func (i *Image) Capacity() int {
	return i.Width() * i.Height() * spec.CHANNELS / spec.BITS_PER_BYTE
}

func (i *Image) Kind() Kind { return i.Format }

// Clone returns a deep copy.
func (i *Image) Clone() *Image {
	dst := image.NewNRGBA(i.img.Rect)
	copy(dst.Pix, i.img.Pix)
	return &Image{Format: i.Format, img: dst}
}
