package room

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// 房間碼：4 個字元，排除容易混淆的 I、O、0、1
const (
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength   = 4
)

// GenerateCode 產生隨機房間碼
//
// 字元表長度 32 整除 256，byte % 32 在字元表上是均勻分布。
func GenerateCode() (string, error) {
	var b [CodeLength]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	for i := range b {
		b[i] = CodeAlphabet[int(b[i])%len(CodeAlphabet)]
	}
	return string(b[:]), nil
}

// NormalizeCode 去除空白並轉大寫
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode 長度與字元是否合法（需先 NormalizeCode）
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
