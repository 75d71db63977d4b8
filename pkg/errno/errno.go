package errno

import (
	"errors"
	"fmt"
)

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Wrap 附加细节信息，保留 errors.Is 语义
func (e Errno) Wrap(err error) error {
	if err == nil {
		return e
	}
	return fmt.Errorf("%w: %v", e, err)
}

// Wrapf 附加格式化的细节信息
func (e Errno) Wrapf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", e, fmt.Sprintf(format, args...))
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message
	}
	return InternalServerError.Code, err.Error()
}

// Retryable reports whether the error class is safe to retry.
// 编码/签名类错误重试没有意义，报价/预算/提交类错误可以换个时间重来。
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNonceConflict),
		errors.Is(err, ErrQuoteUnavailable),
		errors.Is(err, ErrSubmission):
		return true
	default:
		return false
	}
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrConfig           = Errno{Code: 10003, Message: "Invalid configuration"}
)

// Workflow Errors (20000+)
// 每个错误对应撮合流程中的一类失败，见 swap_service 的状态机。
var (
	// ErrEncoding ABI 参数与 schema 不匹配，或签名记录无法序列化。不可重试。
	ErrEncoding = Errno{Code: 20101, Message: "calldata encoding failed"}

	// ErrNonceConflict nonce 快照已过期或保留的 nonce 区间冲突。重新规划后可重试。
	ErrNonceConflict = Errno{Code: 20102, Message: "wallet nonce reservation conflict"}

	// ErrSignature 钱包服务无法凑齐阈值签名。需要人工介入。
	ErrSignature = Errno{Code: 20103, Message: "wallet signature failed"}

	// ErrQuoteUnavailable 交易场所给不出报价（例如缺少流动性）。
	ErrQuoteUnavailable = Errno{Code: 20201, Message: "quote unavailable"}

	// ErrBudgetExceeded 报价的滑点后卖出金额超过抵押上限，下单前中止。
	ErrBudgetExceeded = Errno{Code: 20202, Message: "quote exceeds collateral budget"}

	// ErrSubmission 订单提交失败（限流、瞬时 404、5xx 等）。带退避重试。
	ErrSubmission = Errno{Code: 20203, Message: "order submission failed"}

	// ErrPresignExecution 自动预签名交易执行失败。订单仍可人工授权。
	ErrPresignExecution = Errno{Code: 20204, Message: "presign execution failed"}
)

// StageError 标记失败发生在工作流的哪个阶段。
// 致命错误必须带上阶段信息，运维才能判断链上已经产生了什么状态。
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// AtStage wraps err with the workflow stage it occurred in.
func AtStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf 提取错误携带的阶段信息，没有则返回空串。
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
