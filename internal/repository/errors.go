package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound                = errors.New("记录不存在")
	ErrHostelNotFound          = wrapNotFound("宿舍不存在")
	ErrStudentNotFound         = wrapNotFound("学生不存在")
	ErrBookingNotFound         = wrapNotFound("入住申请不存在")
	ErrDueNotFound             = wrapNotFound("应收款不存在")
	ErrTransactionNotFound     = wrapNotFound("交易不存在")
	ErrDuplicatePendingRequest = errors.New("已存在待审批的入住申请")
	ErrCapacityExhausted       = errors.New("宿舍已满")
	ErrInvalidTransition       = errors.New("状态流转不合法")
	ErrSignatureMismatch       = errors.New("支付签名校验失败")
	ErrGatewayUnavailable      = errors.New("支付网关不可用")
	ErrConcurrencyConflict     = errors.New("并发更新冲突，请重试")
	ErrForbidden               = errors.New("无权操作")
	ErrInvalidAmount           = errors.New("金额不合法")
	ErrInvalidArgument         = errors.New("参数不合法")
	ErrEmailTaken              = errors.New("邮箱已注册")
)

type notFoundError struct{ msg string }

func (e *notFoundError) Error() string        { return e.msg }
func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

func wrapNotFound(msg string) error {
	return &notFoundError{msg: msg}
}

// IsDuplicateKey 兼容开启/未开启 TranslateError 的驱动
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}

func dbOr(tx, db *gorm.DB) *gorm.DB {
	if tx == nil {
		return db
	}
	return tx
}
