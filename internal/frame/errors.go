package frame

import "errors"

// 協定錯誤：遇到這些錯誤時連線直接關閉，不重試
var (
	// ErrMissingKey 握手請求缺少 Sec-WebSocket-Key
	ErrMissingKey = errors.New("frame: missing Sec-WebSocket-Key")

	// ErrFrameTooLarge 宣告的長度超過上限
	ErrFrameTooLarge = errors.New("frame: payload too large")

	// ErrControlFragmented 控制幀不得分片
	ErrControlFragmented = errors.New("frame: control frame must not be fragmented")

	// ErrControlTooLarge 控制幀 payload 超過 125 位元組
	ErrControlTooLarge = errors.New("frame: control frame payload too large")

	// ErrUnexpectedContinuation 沒有進行中的分片卻收到 continuation 幀
	ErrUnexpectedContinuation = errors.New("frame: continuation frame without a fragmented message")

	// ErrFragmentInProgress 分片訊息尚未結束又收到新的資料幀
	ErrFragmentInProgress = errors.New("frame: new data frame while a fragmented message is in progress")

	// ErrInvalidUTF8 文字訊息不是合法的 UTF-8
	ErrInvalidUTF8 = errors.New("frame: invalid UTF-8 in text message")
)
