package sanitize

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
)

// Document properties live under docProps/ (author, company, revision, custom fields).
const docPropsPrefix = "docprops/"

// ooxmlStrategy rewrites the package without its property parts. Remaining
// entries are copied raw so their compressed bytes are unchanged.
func (t *Transcoder) ooxmlStrategy(ctx context.Context, in *os.File, size int64, w io.Writer) error {
	zr, err := zip.NewReader(in, size)
	if err != nil {
		return fmt.Errorf("open package: %v: %w", err, types.ErrCorruptInput)
	}
	if n := len(zr.File); n > t.opts.MaxZipEntries {
		return fmt.Errorf("package has %d entries, limit is %d: %w", n, t.opts.MaxZipEntries, types.ErrCorruptInput)
	}
	for _, f := range zr.File {
		if strings.EqualFold(path.Base(f.Name), "vbaProject.bin") {
			return fmt.Errorf("package contains macros (%s): %w", f.Name, types.ErrUnsupportedType)
		}
	}

	zw := zip.NewWriter(w)
	for i, f := range zr.File {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if strings.HasPrefix(strings.ToLower(f.Name), docPropsPrefix) {
			continue
		}
		if err := zw.Copy(f); err != nil {
			return fmt.Errorf("copy entry %s: %v: %w", f.Name, err, types.ErrCorruptInput)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish package: %v: %w", err, types.ErrTranscodeFailure)
	}
	return nil
}
