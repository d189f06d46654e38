// Package errors 提供對戰伺服器的應用層錯誤
//
// 應用層錯誤（加入不存在的房間、房間已滿等）不會中斷連線，
// 而是以 error 訊息回覆給請求方；Message 欄位就是送給客戶端的文字。
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeInvalidCode 房間碼格式錯誤
	ErrCodeInvalidCode = "INVALID_CODE"
	// ErrCodeRoomNotFound 房間不存在
	ErrCodeRoomNotFound = "ROOM_NOT_FOUND"
	// ErrCodeRoomFull 房間已滿
	ErrCodeRoomFull = "ROOM_FULL"
	// ErrCodeNotInRoom 連線未綁定任何房間
	ErrCodeNotInRoom = "NOT_IN_ROOM"
	// ErrCodeInvalidState 房間狀態不允許此操作
	ErrCodeInvalidState = "INVALID_STATE"
	// ErrCodeUnavailable 外部服務不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
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

// Is 以錯誤碼比較，讓包裝過的錯誤也能對上預定義錯誤
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

// WithDetails 回傳帶有詳細資訊的副本（預定義錯誤是共用的，不能原地修改）
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// 預定義錯誤
var (
	// ErrInvalidCode 房間碼長度或字元不合法
	ErrInvalidCode = New(ErrCodeInvalidCode, "invalid room code")

	// ErrRoomNotFound 房間不存在（或已關閉）
	ErrRoomNotFound = New(ErrCodeRoomNotFound, "room not found")

	// ErrRoomFull 兩個位置都有人
	ErrRoomFull = New(ErrCodeRoomFull, "room is full")

	// ErrNotInRoom 連線尚未加入房間
	ErrNotInRoom = New(ErrCodeNotInRoom, "not in a room")

	// ErrMatchNotFinished 比賽尚未結束，不能準備重賽
	ErrMatchNotFinished = New(ErrCodeInvalidState, "match is not finished")

	// ErrDirectoryUnavailable 房間目錄（Redis）不可用
	ErrDirectoryUnavailable = New(ErrCodeUnavailable, "room directory unavailable")
)

// IsNotFound 檢查是否為房間不存在錯誤
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeRoomNotFound)
}

// IsRoomFull 檢查是否為房間已滿錯誤
func IsRoomFull(err error) bool {
	return hasCode(err, ErrCodeRoomFull)
}

// IsInvalidCode 檢查是否為房間碼錯誤
func IsInvalidCode(err error) bool {
	return hasCode(err, ErrCodeInvalidCode)
}

// IsInvalidState 檢查是否為狀態錯誤
func IsInvalidState(err error) bool {
	return hasCode(err, ErrCodeInvalidState)
}

// PublicMessage 取出可以送給客戶端的訊息；非應用層錯誤一律回覆通用文字
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

func hasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
