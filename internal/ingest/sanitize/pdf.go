package sanitize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
)

// Catalog entries that can carry scripts, forms, attachments or XMP metadata.
var activeCatalogKeys = []string{"Names", "OpenAction", "AA", "AcroForm", "EmbeddedFiles", "JS", "Metadata", "PieceInfo"}

// Page entries that can trigger actions or carry metadata of their own: a
// per-page XMP stream, private application data and a stale thumbnail.
var activePageKeys = []string{"AA", "Annots", "Metadata", "PieceInfo", "LastModified", "Thumb"}

var disableConfigDir sync.Once

func pdfConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// pdfStrategy copies the pages of a validated document into a new context,
// then drops everything that can execute or identify the author.
func (t *Transcoder) pdfStrategy(ctx context.Context, in *os.File, _ int64, w io.Writer) error {
	src, err := api.ReadContext(in, pdfConfig())
	if err != nil {
		return fmt.Errorf("read pdf: %v: %w", err, types.ErrCorruptInput)
	}
	if err := api.ValidateContext(src); err != nil {
		return fmt.Errorf("validate pdf: %v: %w", err, types.ErrCorruptInput)
	}
	if err := src.EnsurePageCount(); err != nil {
		return fmt.Errorf("count pages: %v: %w", err, types.ErrCorruptInput)
	}
	pages := src.PageCount
	if pages == 0 {
		return fmt.Errorf("pdf has no pages: %w", types.ErrCorruptInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := stripPages(src); err != nil {
		return err
	}
	pageNrs := make([]int, pages)
	for i := range pageNrs {
		pageNrs[i] = i + 1
	}
	dst, err := pdfcpu.ExtractPages(src, pageNrs, false)
	if err != nil {
		return fmt.Errorf("copy pages: %v: %w", err, types.ErrTranscodeFailure)
	}

	if err := stripCatalog(dst); err != nil {
		return err
	}
	if err := stripPages(dst); err != nil {
		return err
	}
	clearInfo(dst)

	var buf bytes.Buffer
	if err := api.WriteContext(dst, &buf); err != nil {
		return fmt.Errorf("write pdf: %v: %w", err, types.ErrTranscodeFailure)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.verifier != nil {
		if err := t.verifier.VerifyPDF(buf.Bytes(), pages); err != nil {
			return fmt.Errorf("render check: %v: %w", err, types.ErrTranscodeFailure)
		}
	}

	_, err = w.Write(buf.Bytes())
	return err
}

func stripCatalog(c *model.Context) error {
	root, err := c.Catalog()
	if err != nil {
		return fmt.Errorf("load catalog: %v: %w", err, types.ErrTranscodeFailure)
	}
	deleteKeys(root, activeCatalogKeys)
	return nil
}

func stripPages(c *model.Context) error {
	if err := c.EnsurePageCount(); err != nil {
		return fmt.Errorf("count pages: %v: %w", err, types.ErrCorruptInput)
	}
	for nr := 1; nr <= c.PageCount; nr++ {
		d, _, _, err := c.PageDict(nr, false)
		if err != nil {
			return fmt.Errorf("load page %d: %v: %w", nr, err, types.ErrCorruptInput)
		}
		if d != nil {
			deleteKeys(d, activePageKeys)
		}
	}
	return nil
}

func deleteKeys(d pdftypes.Dict, keys []string) {
	for _, k := range keys {
		d.Delete(k)
	}
}

// clearInfo empties the document information fields. The writer emits a
// fresh Info dictionary that only names the producing library.
func clearInfo(c *model.Context) {
	c.Info = nil
	c.Title = ""
	c.Author = ""
	c.Subject = ""
	c.Keywords = ""
	c.Creator = ""
	c.Producer = ""
}
