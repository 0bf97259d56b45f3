package errx

import (
	"errors"
	"fmt"
)

type Code string

type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) *Error { return &Error{Code: code, Msg: msg} }

func Wrap(code Code, err error, msg string) *Error { return &Error{Code: code, Msg: msg, Err: err} }

func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf 返回错误链上第一个错误码，没有则为空
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// MessageOf 返回面向用户的提示文本
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

const (
	CodeClassificationDegraded Code = "CLASSIFICATION_DEGRADED"
	CodeKnockFailed            Code = "KNOCK_FAILED"
	CodeParseFailed            Code = "QR_PARSE_FAILED"
	CodeNotifyFailed           Code = "NOTIFY_FAILED"
	CodeTOTPFailed             Code = "TOTP_FAILED"
	CodeVerifyFailed           Code = "VERIFY_FAILED"
	CodeInvariantViolation     Code = "INVARIANT_VIOLATION"
	CodeCoreUnavailable        Code = "CORE_UNAVAILABLE"
)
