package bizerror

import (
	"errors"
	"loom/i18n"
	"net/http"
)

var (
	ErrNotFound = errors.New("record not found")
)

type BizError interface {
	Respond() *BizErrorDetail
}

type BizErrorDetail struct {
	Status  int
	Code    string
	Message string

	Data  interface{}
	Cause error
}

type ErrBadParam struct {
	Cause error
}

func (e *ErrBadParam) Unwrap() error {
	return e.Cause
}
func (e *ErrBadParam) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return i18n.CommonBadParam
}
func (e *ErrBadParam) Respond() *BizErrorDetail {
	message := i18n.CommonBadParam
	if e.Cause != nil {
		message = e.Cause.Error()
	}
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: i18n.CommonBadParam, Message: message, Data: nil}
}
