package errors

import (
	"fmt"
	"net/http"
)

// Code 错误码定义，包含 HTTP 状态码与提示信息
type Code struct {
	Code    int    // 业务错误码
	Status  int    // HTTP 状态码
	Message string // 返回给客户端的提示
}

// 各模块错误码
const (
	Success = 0

	// 通用错误 (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008
	ErrRequestCanceled = 1009

	// 上传错误 (2000-2999)
	ErrUploadTooLarge        = 2000
	ErrUploadUnsupportedType = 2001
	ErrUploadCorrupt         = 2002
	ErrUploadProcessing      = 2003
	ErrUploadStorage         = 2004
	ErrUploadInvalidFolder   = 2005
	ErrUploadInvalidUploader = 2006
	ErrUploadInvalidFilename = 2007
)

// codeMap 错误码详情。上传类提示保持笼统，具体错误类型只写日志
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},
	ErrRequestCanceled: {ErrRequestCanceled, 499, "Request canceled"},

	ErrUploadTooLarge:        {ErrUploadTooLarge, http.StatusRequestEntityTooLarge, "File is too large"},
	ErrUploadUnsupportedType: {ErrUploadUnsupportedType, http.StatusUnsupportedMediaType, "File rejected"},
	ErrUploadCorrupt:         {ErrUploadCorrupt, http.StatusUnprocessableEntity, "File rejected"},
	ErrUploadProcessing:      {ErrUploadProcessing, http.StatusUnprocessableEntity, "File could not be processed"},
	ErrUploadStorage:         {ErrUploadStorage, http.StatusInternalServerError, "Storage operation failed"},
	ErrUploadInvalidFolder:   {ErrUploadInvalidFolder, http.StatusBadRequest, "Invalid destination folder"},
	ErrUploadInvalidUploader: {ErrUploadInvalidUploader, http.StatusBadRequest, "Exactly one of admin_id or employee_id is required"},
	ErrUploadInvalidFilename: {ErrUploadInvalidFilename, http.StatusBadRequest, "Invalid filename"},
}

// GetCode 根据错误码获取 Code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus 获取错误码对应的 HTTP 状态码
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage 获取错误码对应的提示
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsClientError 是否为客户端错误 (4xx)
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// FormatError 格式化带错误码的信息
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
