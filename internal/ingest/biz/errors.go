package biz

import "errors"

var (
	ErrInvalidFolder    = errors.New("invalid destination folder")
	ErrInvalidFilename  = errors.New("invalid stored filename")
	ErrArtifactNotFound = errors.New("artifact not found")
)
