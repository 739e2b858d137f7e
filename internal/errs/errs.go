package errs

import (
	"errors"
	"fmt"
)

// Kind 错误分类，请求边界根据分类决定 HTTP 状态码和是否触发处理商重试
type Kind int

const (
	// KindConfiguration 租户未配置可用的支付密钥，终态错误，需管理员处理
	KindConfiguration Kind = iota + 1
	// KindValidation 请求参数缺失或格式错误，未发生任何变更
	KindValidation
	// KindAuthorization 调用者不拥有目标资源（不暴露资源是否存在）
	KindAuthorization
	// KindNotFound 资源不存在
	KindNotFound
	// KindAmountMismatch 客户端声明金额与服务端订单总价不一致，一律拒绝
	KindAmountMismatch
	// KindSignature Webhook 签名缺失或不合法，永久拒绝
	KindSignature
	// KindTransient 数据库/处理商暂时不可用，返回 5xx 让处理商重试投递
	KindTransient
	// KindStateConflict 当前状态不允许该转移
	KindStateConflict
)

// Error 带分类的业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New 创建指定分类的错误
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误并附加分类
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Configuration 租户支付配置缺失
func Configuration(format string, args ...interface{}) *Error {
	return New(KindConfiguration, format, args...)
}

// Validation 参数校验失败
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// Authorization 越权访问
func Authorization(format string, args ...interface{}) *Error {
	return New(KindAuthorization, format, args...)
}

// NotFound 资源不存在
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// AmountMismatch 金额不一致
func AmountMismatch(format string, args ...interface{}) *Error {
	return New(KindAmountMismatch, format, args...)
}

// Signature 签名校验失败
func Signature(format string, args ...interface{}) *Error {
	return New(KindSignature, format, args...)
}

// Transient 暂时性故障
func Transient(err error, format string, args ...interface{}) *Error {
	return Wrap(KindTransient, err, format, args...)
}

// StateConflict 状态机冲突
func StateConflict(format string, args ...interface{}) *Error {
	return New(KindStateConflict, format, args...)
}

// KindOf 提取错误分类，非本包错误归为 KindTransient（保守处理，允许重试）
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// Is 判断错误是否属于指定分类
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus 分类到 HTTP 状态码的映射
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindAmountMismatch, KindSignature:
		return 400
	case KindAuthorization:
		return 403
	case KindNotFound:
		return 404
	case KindStateConflict:
		return 409
	case KindConfiguration:
		return 422
	case KindTransient:
		return 500
	default:
		return 500
	}
}
