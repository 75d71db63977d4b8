package venue

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrNotFound      = errors.New("not found")
	ErrServerError   = errors.New("venue internal error")
	ErrBadRequest    = errors.New("bad request")
	ErrNoLiquidity   = errors.New("insufficient liquidity")
	ErrOrderRejected = errors.New("order rejected")
)

// APIError 场所后端返回的结构化错误。
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"errorType"`
	Message string `json:"description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("venue %d %s: %s", e.Status, e.Code, e.Message)
}

// mapError 把 HTTP 状态映射到哨兵错误，方便调用方 errors.Is 分类。
func mapError(apiErr *APIError) error {
	switch apiErr.Code {
	case "NoLiquidity", "SellAmountDoesNotCoverFee":
		return fmt.Errorf("%w: %v", ErrNoLiquidity, apiErr)
	case "DuplicatedOrder", "InvalidAppData":
		return fmt.Errorf("%w: %v", ErrOrderRejected, apiErr)
	}

	switch apiErr.Status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, apiErr)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, apiErr)
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrBadRequest, apiErr)
	}
	if apiErr.Status >= 500 {
		return fmt.Errorf("%w: %v", ErrServerError, apiErr)
	}
	return apiErr
}

// Transient reports whether the error is worth retrying with backoff.
// 限流、5xx 和场所后端的瞬时 404 都算瞬时错误 (测试网的 404 出了名的飘)。
func Transient(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServerError) ||
		errors.Is(err, ErrNotFound)
}
