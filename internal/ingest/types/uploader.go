package types

import (
	"errors"
	"strings"
)

// UploaderType distinguishes the two actor tables an upload can belong to.
type UploaderType string

const (
	UploaderAdmin    UploaderType = "admin"
	UploaderEmployee UploaderType = "employee"
)

var ErrInvalidUploader = errors.New("exactly one of admin_id or employee_id is required")

// Uploader identifies who performed an upload.
type Uploader struct {
	Type UploaderType
	ID   string
}

// NewUploader builds an Uploader from the two optional ids. Exactly one must be set.
func NewUploader(adminID, employeeID string) (Uploader, error) {
	adminID = strings.TrimSpace(adminID)
	employeeID = strings.TrimSpace(employeeID)

	switch {
	case adminID != "" && employeeID == "":
		return Uploader{Type: UploaderAdmin, ID: adminID}, nil
	case employeeID != "" && adminID == "":
		return Uploader{Type: UploaderEmployee, ID: employeeID}, nil
	default:
		return Uploader{}, ErrInvalidUploader
	}
}
