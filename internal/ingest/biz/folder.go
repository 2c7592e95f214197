package biz

import (
	"fmt"
	"regexp"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/sanitize"
)

const maxFolderLen = 128

var folderPattern = regexp.MustCompile(`^[a-z0-9_-]+(/[a-z0-9_-]+)*$`)

// ValidateFolder checks a logical folder such as "upload/avatar". Only
// lower-case segments separated by single slashes pass.
func ValidateFolder(folder string) error {
	if len(folder) == 0 || len(folder) > maxFolderLen || !folderPattern.MatchString(folder) {
		return fmt.Errorf("%w: %q", ErrInvalidFolder, folder)
	}
	return nil
}

// ValidateFilename accepts only names the transcoder could have generated.
func ValidateFilename(name string) error {
	if !sanitize.IsGeneratedFilename(name) {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}
