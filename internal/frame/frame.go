// Package frame 實作 WebSocket（RFC 6455）的握手與資料幀編解碼
//
// 系統設計問題：
//   TCP 是位元組串流，沒有訊息邊界；一次 Read 可能只拿到半個幀，也可能一次拿到好幾個幀。
//
// 設計方案：
//   ✅ 每個連線一個累積緩衝區（Decoder），只有在完整幀到齊時才消耗位元組
//   ✅ 長度三段式：7 位元內嵌 / 16 位元擴展 / 64 位元擴展（值限制在 32 位元內）
//   ✅ 伺服器送出的幀不加遮罩；客戶端的幀以 4 位元組遮罩循環 XOR 還原
//
// 預設傳輸層使用 gorilla/websocket，這個套件服務於 raw 傳輸模式
// （直接接管 TCP socket），並提供可獨立測試的編解碼契約。
package frame

import (
	"encoding/binary"
	"math"
)

// Opcode 幀操作碼（4 位元）
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// IsControl 控制幀（close/ping/pong）
func (op Opcode) IsControl() bool {
	return op&0x8 != 0
}

// 長度編碼門檻
const (
	payloadLen7Bit  = 125
	payloadLen16Bit = 126
	payloadLen64Bit = 127

	maxControlPayload = 125

	// DefaultMaxPayload 單一訊息預設上限；遊戲訊息都很小
	DefaultMaxPayload = 64 * 1024
)

// Frame 一個解碼後的幀
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	Mask    [4]byte
	Payload []byte
}

// Parse 嘗試從 buf 開頭解出一個完整幀
//
// 回傳值：
//   - (frame, n, nil)：成功，n 為消耗的位元組數
//   - (nil, 0, nil)：資料不足，等待更多位元組（不是錯誤）
//   - (nil, 0, err)：協定錯誤，連線應該關閉
//
// 長度超過 maxPayload 的幀在 payload 到齊前就會被拒絕，避免為惡意長度預留記憶體。
func Parse(buf []byte, maxPayload int) (*Frame, int, error) {
	if len(buf) < 2 {
		return nil, 0, nil
	}

	first, second := buf[0], buf[1]
	f := &Frame{
		Fin:    first&0x80 != 0,
		Opcode: Opcode(first & 0x0F),
		Masked: second&0x80 != 0,
	}

	length := uint64(second & 0x7F)
	offset := 2

	switch length {
	case payloadLen16Bit:
		if len(buf) < offset+2 {
			return nil, 0, nil
		}
		length = uint64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case payloadLen64Bit:
		if len(buf) < offset+8 {
			return nil, 0, nil
		}
		length = binary.BigEndian.Uint64(buf[offset:])
		offset += 8
		// 只接受 32 位元範圍內的長度
		if length > math.MaxUint32 {
			return nil, 0, ErrFrameTooLarge
		}
	}

	if f.Opcode.IsControl() {
		if !f.Fin {
			return nil, 0, ErrControlFragmented
		}
		if length > maxControlPayload {
			return nil, 0, ErrControlTooLarge
		}
	}

	if maxPayload > 0 && length > uint64(maxPayload) {
		return nil, 0, ErrFrameTooLarge
	}
	// 32 位元平台上 int 放不下 2^32-1
	if length > uint64(math.MaxInt-offset-4) {
		return nil, 0, ErrFrameTooLarge
	}

	if f.Masked {
		if len(buf) < offset+4 {
			return nil, 0, nil
		}
		copy(f.Mask[:], buf[offset:offset+4])
		offset += 4
	}

	end := offset + int(length)
	if len(buf) < end {
		return nil, 0, nil
	}

	// 複製一份：呼叫端會壓縮緩衝區
	f.Payload = make([]byte, length)
	copy(f.Payload, buf[offset:end])
	if f.Masked {
		ApplyMask(f.Payload, f.Mask)
	}

	return f, end, nil
}

// ApplyMask 以遮罩循環 XOR（遮罩與解遮罩是同一個操作）
func ApplyMask(b []byte, mask [4]byte) {
	for i := range b {
		b[i] ^= mask[i%4]
	}
}

// Encode 編碼一個伺服器端幀：FIN=1、不加遮罩
func Encode(op Opcode, payload []byte) []byte {
	buf := appendHeader(make([]byte, 0, headerSize(len(payload), false)+len(payload)), op, len(payload), false)
	return append(buf, payload...)
}

// EncodeMasked 編碼一個帶遮罩的幀（客戶端方向，用於測試與工具）
func EncodeMasked(op Opcode, payload []byte, mask [4]byte) []byte {
	buf := appendHeader(make([]byte, 0, headerSize(len(payload), true)+len(payload)), op, len(payload), true)
	buf = append(buf, mask[:]...)
	start := len(buf)
	buf = append(buf, payload...)
	ApplyMask(buf[start:], mask)
	return buf
}

// EncodeClose 編碼 close 幀，payload 為 2 位元組狀態碼 + 原因
func EncodeClose(code uint16, reason string) []byte {
	payload := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(payload, code)
	payload = append(payload, reason...)
	if len(payload) > maxControlPayload {
		payload = payload[:maxControlPayload]
	}
	return Encode(OpClose, payload)
}

func headerSize(n int, masked bool) int {
	size := 2
	switch {
	case n <= payloadLen7Bit:
	case n <= math.MaxUint16:
		size += 2
	default:
		size += 8
	}
	if masked {
		size += 4
	}
	return size
}

func appendHeader(buf []byte, op Opcode, n int, masked bool) []byte {
	var maskBit byte
	if masked {
		maskBit = 0x80
	}

	buf = append(buf, 0x80|byte(op&0x0F))
	switch {
	case n <= payloadLen7Bit:
		buf = append(buf, maskBit|byte(n))
	case n <= math.MaxUint16:
		buf = append(buf, maskBit|payloadLen16Bit)
		buf = binary.BigEndian.AppendUint16(buf, uint16(n))
	default:
		buf = append(buf, maskBit|payloadLen64Bit)
		buf = binary.BigEndian.AppendUint64(buf, uint64(n))
	}
	return buf
}
