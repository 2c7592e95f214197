package sanitize

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const timestampLayout = "20060102150405"

var generatedName = regexp.MustCompile(`^\d{14}_[0-9a-f]{32}\.[a-z0-9]{2,5}$`)

// GenerateFilename returns a fresh storage name such as
// 20250101093000_3f2c...e1.jpg. Nothing from the client goes into it.
func GenerateFilename(now time.Time, ext string) string {
	id := uuid.New()
	return now.UTC().Format(timestampLayout) + "_" + strings.ReplaceAll(id.String(), "-", "") + "." + ext
}

// IsGeneratedFilename reports whether name could have come from GenerateFilename.
func IsGeneratedFilename(name string) bool {
	return generatedName.MatchString(name)
}
