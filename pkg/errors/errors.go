// Package errors 提供應用程式錯誤處理
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// 定義錯誤碼
const (
	// ErrCodeNotFound 資源未找到
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeUnauthorized 缺少身分憑證
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeInvalidToken 憑證無效或過期
	ErrCodeInvalidToken = "INVALID_TOKEN"
	// ErrCodeConflict 狀態衝突（已在佇列或對局中）
	ErrCodeConflict = "CONFLICT"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeUnavailable 服務不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 以錯誤碼比對
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 回傳附帶詳細資訊的副本，預定義錯誤不會被修改
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// 預定義錯誤
var (
	ErrPlayerNotFound   = New(ErrCodeNotFound, "player not found")
	ErrInvalidName      = New(ErrCodeInvalidInput, "invalid player name")
	ErrMissingToken     = New(ErrCodeUnauthorized, "missing bearer token")
	ErrInvalidToken     = New(ErrCodeInvalidToken, "invalid or expired token")
	ErrStatsUnavailable = New(ErrCodeUnavailable, "stats store unavailable")
)

// CodeOf 取出錯誤碼，非 AppError 視為內部錯誤
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HTTPStatus 錯誤碼對應的 HTTP 狀態碼
func HTTPStatus(code string) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnauthorized, ErrCodeInvalidToken:
		return http.StatusUnauthorized
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeNotFound
}

// IsInvalidInput 檢查是否為無效輸入
func IsInvalidInput(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeInvalidInput
}

// IsUnauthorized 檢查是否為身分驗證失敗（缺少或無效憑證）
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	code := CodeOf(err)
	return code == ErrCodeUnauthorized || code == ErrCodeInvalidToken
}

// IsUnavailable 檢查是否為服務不可用
func IsUnavailable(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeUnavailable
}
