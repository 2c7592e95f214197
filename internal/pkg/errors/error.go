package errors

import (
	"errors"
	"fmt"
)

// AppError 结构化应用错误
type AppError struct {
	Code    int    // 业务错误码
	Message string // 可读提示
	Err     error  // 底层错误，不会返回给客户端
	Details string // 可安全展示的补充信息
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Is 与 errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus 返回该错误对应的 HTTP 状态码
func (e *AppError) HTTPStatus() int {
	return GetHTTPStatus(e.Code)
}

// New 根据错误码创建 AppError
func New(code int, details ...string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Code:    code,
		Message: GetMessage(code),
		Details: detail,
	}
}

// Wrap 为 err 附加错误码，原错误保留用于日志与 errors.Is
func Wrap(err error, code int, details ...string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	e := New(code, details...)
	e.Err = err
	return e
}

// Is 判断 err 是否为指定错误码的 AppError
func Is(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ExtractCode 从错误中提取错误码
func ExtractCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternalServer
}

// PublicDetails 只返回 AppError 中可对外展示的信息
func PublicDetails(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return ""
}

// NewInternalError 创建服务器内部错误
func NewInternalError(details ...string) *AppError {
	return New(ErrInternalServer, details...)
}

// NewBadRequestError 创建请求参数错误
func NewBadRequestError(details ...string) *AppError {
	return New(ErrBadRequest, details...)
}
