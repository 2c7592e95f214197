// Package ingesttest builds upload fixtures in memory for pipeline tests.
package ingesttest

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/klauspost/compress/zip"
)

// Gradient returns a w×h image with a diagonal colour ramp.
func Gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

// PNG encodes a w×h gradient.
func PNG(w, h int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Gradient(w, h)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// GIF encodes a two-frame animation.
func GIF(w, h int) []byte {
	palette := color.Palette{color.Black, color.White}
	frames := []*image.Paletted{
		image.NewPaletted(image.Rect(0, 0, w, h), palette),
		image.NewPaletted(image.Rect(0, 0, w, h), palette),
	}
	frames[1].SetColorIndex(0, 0, 1)

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, &gif.GIF{Image: frames, Delay: []int{10, 10}}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// ExifMarker is the identifier that opens an EXIF APP1 payload.
var ExifMarker = []byte("Exif\x00\x00")

// JPEGWithEXIF encodes a w×h gradient and inserts an APP1 EXIF segment
// carrying the given orientation and an Artist tag.
func JPEGWithEXIF(w, h int, orientation uint16) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Gradient(w, h), &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	raw := buf.Bytes()

	artist := []byte("Jane Photographer\x00")

	// big-endian TIFF: header, one IFD with two entries, then the artist string
	var tiff bytes.Buffer
	tiff.WriteString("MM\x00\x2a")
	binary.Write(&tiff, binary.BigEndian, uint32(8))
	binary.Write(&tiff, binary.BigEndian, uint16(2))
	// 0x0112 Orientation, SHORT, count 1, value left-justified
	binary.Write(&tiff, binary.BigEndian, []uint16{0x0112, 3})
	binary.Write(&tiff, binary.BigEndian, uint32(1))
	binary.Write(&tiff, binary.BigEndian, []uint16{orientation, 0})
	// 0x013B Artist, ASCII, stored after the IFD
	binary.Write(&tiff, binary.BigEndian, []uint16{0x013b, 2})
	binary.Write(&tiff, binary.BigEndian, uint32(len(artist)))
	binary.Write(&tiff, binary.BigEndian, uint32(8+2+2*12+4))
	binary.Write(&tiff, binary.BigEndian, uint32(0))
	tiff.Write(artist)

	payload := append(append([]byte{}, ExifMarker...), tiff.Bytes()...)

	var out bytes.Buffer
	out.Write(raw[:2]) // SOI
	out.Write([]byte{0xff, 0xe1})
	binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(raw[2:])
	return out.Bytes()
}

// TIFFWithOrientation writes an uncompressed little-endian RGB TIFF of a
// w×h gradient whose IFD carries the given Orientation tag.
func TIFFWithOrientation(w, h int, orientation uint16) []byte {
	const (
		entries    = 10
		ifdEnd     = 8 + 2 + entries*12 + 4
		bitsOffset = ifdEnd
		pixOffset  = bitsOffset + 6
	)
	le := binary.LittleEndian

	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, uint32(8))
	binary.Write(&buf, le, uint16(entries))

	short := func(tag, v uint16) {
		binary.Write(&buf, le, []uint16{tag, 3})
		binary.Write(&buf, le, uint32(1))
		binary.Write(&buf, le, []uint16{v, 0})
	}
	long := func(tag uint16, v uint32) {
		binary.Write(&buf, le, []uint16{tag, 4})
		binary.Write(&buf, le, uint32(1))
		binary.Write(&buf, le, v)
	}

	short(256, uint16(w))
	short(257, uint16(h))
	// BitsPerSample 8,8,8 stored after the IFD
	binary.Write(&buf, le, []uint16{258, 3})
	binary.Write(&buf, le, []uint32{3, bitsOffset})
	short(259, 1) // no compression
	short(262, 2) // RGB
	long(273, pixOffset)
	short(274, orientation)
	short(277, 3)
	short(278, uint16(h))
	long(279, uint32(w*h*3))
	binary.Write(&buf, le, uint32(0))
	binary.Write(&buf, le, []uint16{8, 8, 8})

	img := Gradient(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.NRGBAAt(x, y)
			buf.Write([]byte{c.R, c.G, c.B})
		}
	}
	return buf.Bytes()
}

// WebPWithOrientation encodes a w×h gradient as an extended WebP: a VP8X
// header flagging EXIF, the lossless bitstream, then an EXIF chunk holding a
// TIFF IFD with the given orientation.
func WebPWithOrientation(w, h int, orientation uint16) []byte {
	var simple bytes.Buffer
	if err := nativewebp.Encode(&simple, Gradient(w, h), nil); err != nil {
		panic(err)
	}
	// everything after RIFF size WEBP is the image chunk list
	imageChunks := simple.Bytes()[12:]

	var exif bytes.Buffer
	exif.WriteString("II*\x00")
	binary.Write(&exif, binary.LittleEndian, uint32(8))
	binary.Write(&exif, binary.LittleEndian, uint16(1))
	binary.Write(&exif, binary.LittleEndian, []uint16{0x0112, 3})
	binary.Write(&exif, binary.LittleEndian, uint32(1))
	binary.Write(&exif, binary.LittleEndian, []uint16{orientation, 0})
	binary.Write(&exif, binary.LittleEndian, uint32(0))

	vp8x := make([]byte, 10)
	vp8x[0] = 0x08 // EXIF present
	putUint24(vp8x[4:], uint32(w-1))
	putUint24(vp8x[7:], uint32(h-1))

	var body bytes.Buffer
	body.WriteString("WEBP")
	writeRIFFChunk(&body, "VP8X", vp8x)
	body.Write(imageChunks)
	writeRIFFChunk(&body, "EXIF", exif.Bytes())

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func writeRIFFChunk(buf *bytes.Buffer, id string, data []byte) {
	buf.WriteString(id)
	binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	if len(data)%2 == 1 {
		buf.WriteByte(0)
	}
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// Tar writes entries as a ustar archive.
func Tar(entries ...ZipEntry) []byte {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0o644, Size: int64(len(e.Body)), Format: tar.FormatUSTAR}
		if err := tw.WriteHeader(hdr); err != nil {
			panic(err)
		}
		if _, err := tw.Write([]byte(e.Body)); err != nil {
			panic(err)
		}
	}
	if err := tw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Executable returns a minimal PE-looking blob.
func Executable() []byte {
	b := make([]byte, 512)
	copy(b, "MZ")
	copy(b[0x40:], "This program cannot be run in DOS mode.")
	return b
}

// ZipEntry is one file in a generated package.
type ZipEntry struct {
	Name string
	Body string
}

// Zip writes entries in order.
func Zip(entries ...ZipEntry) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(e.Body)); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// DocxEntries is a minimal WordprocessingML package with core and app
// properties that identify the author.
func DocxEntries() []ZipEntry {
	return []ZipEntry{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`},
		{"_rels/.rels", `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`},
		{"docProps/core.xml", `<?xml version="1.0"?><cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:creator>Jane Author</dc:creator></cp:coreProperties>`},
		{"docProps/app.xml", `<?xml version="1.0"?><Properties><Company>Secret Corp</Company></Properties>`},
		{"word/document.xml", `<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>Hello</w:t></w:r></w:p></w:body></w:document>`},
	}
}

// Docx builds a .docx package, optionally with extra entries appended.
func Docx(extra ...ZipEntry) []byte {
	return Zip(append(DocxEntries(), extra...)...)
}

// PDFWithActiveContent returns a one-page PDF whose catalog carries an
// OpenAction, a JavaScript name tree, document additional actions and an
// AcroForm, whose page has additional actions and a link annotation running
// JavaScript, and whose Info dictionary names the author. The page also carries
// an XMP metadata stream and private PieceInfo data, both tagged with "Leak"
// markers that must not reach the output.
func PDFWithActiveContent() []byte {
	content := "0 0 m 100 100 l S"
	xmp := `<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"><rdf:Description dc:creator="LeakXMP"/></rdf:RDF></x:xmpmeta>`
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R /OpenAction 5 0 R /Names << /JavaScript 6 0 R >> /AA << /WC 5 0 R >> /AcroForm << /Fields [] >> >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] /Contents 4 0 R /Resources << >> /AA << /O 5 0 R >> /Annots [7 0 R] /Metadata 9 0 R /PieceInfo << /LeakApp << /LastModified (D:20240101000000Z) /Private (LeakPiece) >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Action /S /JavaScript /JS (app.alert\\(1\\)) >>",
		"<< /Names [(boot) 5 0 R] >>",
		"<< /Type /Annot /Subtype /Link /Rect [0 0 10 10] /Border [0 0 0] /A 5 0 R >>",
		"<< /Title (Quarterly) /Author (Jane Author) /Producer (LeakyWriter 1.0) >>",
		fmt.Sprintf("<< /Type /Metadata /Subtype /XML /Length %d >>\nstream\n%s\nendstream", len(xmp), xmp),
	}
	return buildPDF(objects, "/Root 1 0 R /Info 8 0 R")
}

// PlainPDF returns a valid one-page PDF with no active content.
func PlainPDF() []byte {
	content := "0 0 m 50 50 l S"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] /Contents 4 0 R /Resources << >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}
	return buildPDF(objects, "/Root 1 0 R")
}

// CorruptPDF has a valid signature and nothing parseable after it.
func CorruptPDF() []byte {
	return []byte("%PDF-1.7\n" + strings.Repeat("garbage ", 64) + "\n%%EOF\n")
}

// buildPDF numbers objects from 1 and writes a correct xref table.
func buildPDF(objects []string, trailer string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d %s >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, trailer, xref)
	return buf.Bytes()
}
