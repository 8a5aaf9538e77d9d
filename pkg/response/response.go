package response

import (
	"net/http"

	"balanceledger/pkg/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess     = 0
	CodeParamError  = 400
	CodeNotFound    = 404
	CodeServerError = 500
)

// 业务错误码，与 apperr.Kind 一一对应
const (
	CodeBelowMinimum           = 1001
	CodeAboveMaximum           = 1002
	CodeDailyCapExceeded       = 1003
	CodeBalanceCapExceeded     = 1004
	CodeInsufficientBalance    = 1005
	CodeAccountFrozen          = 1006
	CodePromotionExhausted     = 1007
	CodeTimeout                = 1008
	CodeConcurrentModification = 1009
)

var kindCodes = map[apperr.Kind]int{
	apperr.KindBelowMinimum:           CodeBelowMinimum,
	apperr.KindAboveMaximum:           CodeAboveMaximum,
	apperr.KindDailyCapExceeded:       CodeDailyCapExceeded,
	apperr.KindBalanceCapExceeded:     CodeBalanceCapExceeded,
	apperr.KindInsufficientBalance:    CodeInsufficientBalance,
	apperr.KindAccountFrozen:          CodeAccountFrozen,
	apperr.KindPromotionExhausted:     CodePromotionExhausted,
	apperr.KindTimeout:                CodeTimeout,
	apperr.KindConcurrentModification: CodeConcurrentModification,
	apperr.KindInvalidArgument:        CodeParamError,
	apperr.KindNotFound:               CodeNotFound,
	apperr.KindInternal:               CodeServerError,
}

type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Kind      string      `json:"kind,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// CodeOf 业务错误对应的错误码
func CodeOf(err error) int {
	if code, ok := kindCodes[apperr.KindOf(err)]; ok {
		return code
	}
	return CodeServerError
}

// UserError 面向终端用户，返回可读文案
func UserError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	c.JSON(http.StatusOK, Response{
		Code:      CodeOf(err),
		Message:   apperr.UserMessage(err),
		Kind:      string(kind),
		Retryable: apperr.Retryable(err),
	})
}

// AdminError 面向管理后台，直接返回错误类别
func AdminError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := string(kind)
	if kind == apperr.KindInvalidArgument || kind == apperr.KindNotFound {
		msg = err.Error()
	}
	c.JSON(http.StatusOK, Response{
		Code:      CodeOf(err),
		Message:   msg,
		Kind:      string(kind),
		Retryable: apperr.Retryable(err),
	})
}
