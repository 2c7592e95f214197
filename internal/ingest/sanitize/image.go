package sanitize

import (
	"context"
	"fmt"
	"image"
	"image/gif"
	"io"
	"os"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/heic"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
)

// rasterOutput maps a detected raster extension to what gets written.
// Formats without a practical encoder are converted to JPEG.
func rasterOutput(ext string) (string, string) {
	switch ext {
	case "png":
		return "png", "image/png"
	case "webp":
		return "webp", "image/webp"
	default:
		return "jpg", "image/jpeg"
	}
}

// rasterCodec decodes one input format. A non-nil orientation reads the EXIF
// orientation that decode itself ignores.
type rasterCodec struct {
	decodeConfig func(io.Reader) (image.Config, error)
	decode       func(io.Reader) (image.Image, error)
	orientation  orientationReader
}

func codecFor(ext string) rasterCodec {
	switch ext {
	case "webp":
		return rasterCodec{webp.DecodeConfig, webp.Decode, webpOrientation}
	case "heic", "heif":
		// libheif applies the irot/imir transforms while decoding.
		return rasterCodec{heic.DecodeConfig, heic.Decode, nil}
	case "tiff":
		return rasterCodec{tiff.DecodeConfig, tiff.Decode, tiffOrientation}
	default:
		return rasterCodec{
			decodeConfig: func(r io.Reader) (image.Config, error) {
				cfg, _, err := image.DecodeConfig(r)
				return cfg, err
			},
			// EXIF orientation is applied to the pixels; the tag itself is not carried over.
			decode: func(r io.Reader) (image.Image, error) {
				return imaging.Decode(r, imaging.AutoOrientation(true))
			},
		}
	}
}

// rasterStrategy decodes to pixels and encodes a new file. Nothing outside
// the pixel data survives the round trip.
func (t *Transcoder) rasterStrategy(inExt, outExt string) strategy {
	codec := codecFor(inExt)
	return func(ctx context.Context, in *os.File, _ int64, w io.Writer) error {
		cfg, err := codec.decodeConfig(in)
		if err != nil {
			return fmt.Errorf("read %s header: %v: %w", inExt, err, types.ErrCorruptInput)
		}
		if err := t.checkPixels(cfg.Width, cfg.Height); err != nil {
			return err
		}

		if _, err := in.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind: %v: %w", err, types.ErrStorageIO)
		}
		img, err := codec.decode(in)
		if err != nil {
			return fmt.Errorf("decode %s: %v: %w", inExt, err, types.ErrCorruptInput)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if codec.orientation != nil {
			if _, err := in.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewind: %v: %w", err, types.ErrStorageIO)
			}
			img = orient(img, codec.orientation(in))
		}

		switch outExt {
		case "png":
			err = imaging.Encode(w, img, imaging.PNG)
		case "webp":
			err = nativewebp.Encode(w, img, nil)
		default:
			err = imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(t.opts.JPEGQuality))
		}
		if err != nil {
			return fmt.Errorf("encode %s: %v: %w", outExt, err, types.ErrTranscodeFailure)
		}
		return nil
	}
}

// animatedStrategy stores GIFs byte for byte once they parse and fit the
// pixel budget.
func (t *Transcoder) animatedStrategy(ctx context.Context, in *os.File, size int64, w io.Writer) error {
	cfg, err := gif.DecodeConfig(in)
	if err != nil {
		return fmt.Errorf("read gif header: %v: %w", err, types.ErrCorruptInput)
	}
	if err := t.checkPixels(cfg.Width, cfg.Height); err != nil {
		return err
	}

	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind: %v: %w", err, types.ErrStorageIO)
	}
	if _, err := gif.DecodeAll(in); err != nil {
		return fmt.Errorf("decode gif: %v: %w", err, types.ErrCorruptInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return copyStrategy(ctx, in, size, w)
}

func (t *Transcoder) checkPixels(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("image has no pixels (%dx%d): %w", width, height, types.ErrCorruptInput)
	}
	if px := int64(width) * int64(height); px > t.opts.MaxPixels {
		return fmt.Errorf("image is %dx%d, over the %d pixel limit: %w", width, height, t.opts.MaxPixels, types.ErrPayloadTooLarge)
	}
	return nil
}
