package sanitize

import (
	"bytes"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/riff"
)

const maxEXIFChunk = 1 << 20

var (
	fourccWEBP = riff.FourCC{'W', 'E', 'B', 'P'}
	fourccEXIF = riff.FourCC{'E', 'X', 'I', 'F'}
)

// orientationReader returns the EXIF orientation (1..8) of the file, or 0
// when there is none. Unreadable metadata counts as none; the pixels are
// checked separately by the decoder.
type orientationReader func(in *os.File) int

func tiffOrientation(in *os.File) int {
	return decodeOrientation(in)
}

// webpOrientation walks the RIFF chunks of an extended WebP for an EXIF
// chunk. Simple lossy and lossless files carry none.
func webpOrientation(in *os.File) int {
	form, r, err := riff.NewReader(in)
	if err != nil || form != fourccWEBP {
		return 0
	}
	for {
		id, n, data, err := r.Next()
		if err != nil {
			return 0
		}
		if id != fourccEXIF {
			continue
		}
		if n > maxEXIFChunk {
			return 0
		}
		raw, err := io.ReadAll(data)
		if err != nil {
			return 0
		}
		return decodeOrientation(bytes.NewReader(raw))
	}
}

// decodeOrientation tolerates broken sub-IFDs as long as IFD0 parsed.
func decodeOrientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 0
	}
	return o
}

// orient applies an EXIF orientation to decoded pixels.
func orient(img image.Image, o int) image.Image {
	switch o {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
