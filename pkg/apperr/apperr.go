package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind 错误类别，调用方通过 Kind 决定展示文案和是否重试
type Kind string

const (
	KindBelowMinimum           Kind = "BelowMinimum"
	KindAboveMaximum           Kind = "AboveMaximum"
	KindDailyCapExceeded       Kind = "DailyCapExceeded"
	KindBalanceCapExceeded     Kind = "BalanceCapExceeded"
	KindInsufficientBalance    Kind = "InsufficientBalance"
	KindAccountFrozen          Kind = "AccountFrozen"
	KindPromotionExhausted     Kind = "PromotionExhausted"
	KindTimeout                Kind = "Timeout"
	KindConcurrentModification Kind = "ConcurrentModification"
	KindInvalidArgument        Kind = "InvalidArgument"
	KindNotFound               Kind = "NotFound"
	KindInternal               Kind = "Internal"
)

// 面向用户的默认提示
var userMessages = map[Kind]string{
	KindBelowMinimum:           "充值金额低于最低限额",
	KindAboveMaximum:           "充值金额超过单笔上限",
	KindDailyCapExceeded:       "今日充值金额已达上限",
	KindBalanceCapExceeded:     "账户余额将超过上限",
	KindInsufficientBalance:    "余额不足",
	KindAccountFrozen:          "账户已冻结",
	KindPromotionExhausted:     "活动名额已满",
	KindTimeout:                "系统繁忙，请稍后重试",
	KindConcurrentModification: "系统繁忙，请重试",
	KindInvalidArgument:        "参数错误",
	KindNotFound:               "记录不存在",
	KindInternal:               "服务器内部错误",
}

// Error 业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = userMessages[e.Kind]
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按 Kind 比较，errors.Is(err, apperr.ErrInsufficientBalance) 对任意同类错误成立
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrBelowMinimum           = &Error{Kind: KindBelowMinimum}
	ErrAboveMaximum           = &Error{Kind: KindAboveMaximum}
	ErrDailyCapExceeded       = &Error{Kind: KindDailyCapExceeded}
	ErrBalanceCapExceeded     = &Error{Kind: KindBalanceCapExceeded}
	ErrInsufficientBalance    = &Error{Kind: KindInsufficientBalance}
	ErrAccountFrozen          = &Error{Kind: KindAccountFrozen}
	ErrPromotionExhausted     = &Error{Kind: KindPromotionExhausted}
	ErrTimeout                = &Error{Kind: KindTimeout}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrInvalidArgument        = &Error{Kind: KindInvalidArgument}
	ErrNotFound               = &Error{Kind: KindNotFound}
)

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf 提取错误类别，非业务错误统一视为 Internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindInternal
}

// Retryable 只有超时和并发冲突允许调用方重试
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindConcurrentModification:
		return true
	}
	return false
}

// UserMessage 返回可以直接展示给用户的文案
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" && e.Kind == KindInvalidArgument {
			return e.Message
		}
		return userMessages[e.Kind]
	}
	return userMessages[KindOf(err)]
}

// FromContext 将 context 超时/取消转换为 Timeout，其他错误原样返回
func FromContext(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(KindTimeout, err, "事务超时")
	}
	return err
}
