// Package render checks rebuilt PDFs with an independent renderer (MuPDF via go-fitz).
package render

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// the first page only has to render, not look good
const renderDPI = 18

// FitzVerifier opens a PDF and checks its page count.
type FitzVerifier struct{}

func NewFitzVerifier() *FitzVerifier {
	return &FitzVerifier{}
}

// VerifyPDF opens data from memory. The page count must equal wantPages and
// the first page must render.
func (v *FitzVerifier) VerifyPDF(data []byte, wantPages int) error {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if got := doc.NumPage(); got != wantPages {
		return fmt.Errorf("page count mismatch: rendered %d, expected %d", got, wantPages)
	}
	if wantPages == 0 {
		return nil
	}

	if _, err := doc.ImageDPI(0, renderDPI); err != nil {
		return fmt.Errorf("failed to render first page: %w", err)
	}
	return nil
}
