package minio

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

var (
	ErrObjectNotFound    = errors.New("minio: object not found")
	ErrInvalidArgument   = errors.New("minio: invalid argument")
	ErrInvalidObjectName = errors.New("minio: invalid object name")
	ErrClientClosed      = errors.New("minio: client is closed")
)

// Error 记录失败的镜像操作与对象键
type Error struct {
	Op     string
	Bucket string
	Object string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("minio: ")
	b.WriteString(e.Op)
	if e.Bucket != "" {
		b.WriteString(" ")
		b.WriteString(e.Bucket)
		if e.Object != "" {
			b.WriteString("/")
			b.WriteString(e.Object)
		}
	}
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound 对象或桶不存在。删除已不存在的镜像副本对调用方不算错误
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrObjectNotFound) {
		return true
	}

	switch responseCode(err) {
	case "NoSuchBucket", "NoSuchKey":
		return true
	}
	return false
}

// IsBucketAlreadyExists 在 BucketExists 与 MakeBucket 之间桶已被其他实例创建
func IsBucketAlreadyExists(err error) bool {
	switch responseCode(err) {
	case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
		return true
	}
	return false
}

func responseCode(err error) string {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code
	}
	return ""
}

// WrapError 为 err 附加操作名与对象键
func WrapError(op string, err error, bucket, object string) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Bucket: bucket, Object: object, Err: err}
}

// WrapErrorWithMessage 为 err 附加操作名与简短说明
func WrapErrorWithMessage(op string, err error, detail string) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Detail: detail, Err: err}
}
