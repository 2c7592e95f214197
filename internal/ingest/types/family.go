// Package types holds the vocabulary shared by every stage of the ingestion
// pipeline: type families, the error taxonomy and uploader identity.
package types

// Family is the coarse content class that selects a sanitizing strategy.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyRasterImage
	FamilyAnimatedImage
	FamilyPDFDocument
	FamilyOOXMLPackage
	FamilyLegacyOffice
	FamilyPlainText
	FamilyArchive
)

var familyNames = map[Family]string{
	FamilyUnknown:       "unknown",
	FamilyRasterImage:   "raster_image",
	FamilyAnimatedImage: "animated_image",
	FamilyPDFDocument:   "pdf_document",
	FamilyOOXMLPackage:  "ooxml_package",
	FamilyLegacyOffice:  "legacy_office",
	FamilyPlainText:     "plain_text",
	FamilyArchive:       "archive",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return "unknown"
}

// Transcodable reports whether a sanitizing strategy exists for the family.
// Archives and unknown content never leave the sniffer.
func (f Family) Transcodable() bool {
	switch f {
	case FamilyRasterImage, FamilyAnimatedImage, FamilyPDFDocument,
		FamilyOOXMLPackage, FamilyLegacyOffice, FamilyPlainText:
		return true
	default:
		return false
	}
}

// PassThrough reports whether the family is stored as a byte copy without
// structural sanitization.
func (f Family) PassThrough() bool {
	return f == FamilyLegacyOffice || f == FamilyPlainText
}
