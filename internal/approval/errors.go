package approval

import (
	"errors"
	"fmt"
)

// Code 审批错误码
type Code string

// 审批错误码
const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeAlreadyDecided   Code = "ALREADY_DECIDED"
	CodeNotEligible      Code = "NOT_ELIGIBLE"
	CodeAlreadySubmitted Code = "ALREADY_SUBMITTED"
	CodeNotEditable      Code = "NOT_EDITABLE"
	CodeStorageConflict  Code = "STORAGE_CONFLICT"
	CodeNotFound         Code = "NOT_FOUND"
)

// Error 审批领域错误
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 错误码相同即视为同一类错误
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// 哨兵错误,用于 errors.Is 判断
var (
	ErrValidation       = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrAlreadyDecided   = &Error{Code: CodeAlreadyDecided, Message: "approval record is no longer pending"}
	ErrNotEligible      = &Error{Code: CodeNotEligible, Message: "actor is not eligible for this level"}
	ErrAlreadySubmitted = &Error{Code: CodeAlreadySubmitted, Message: "item already submitted"}
	ErrNotEditable      = &Error{Code: CodeNotEditable, Message: "item is not awaiting resubmission"}
	ErrStorageConflict  = &Error{Code: CodeStorageConflict, Message: "concurrent modification"}
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "not found"}
)

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf 获取错误码,非审批错误返回空字符串
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
