package frame

import (
	"crypto/sha1" // #nosec G505 - RFC 6455 規定使用 SHA-1，不作安全用途
	"encoding/base64"
	"net/http"
	"strings"
)

// GUID RFC 6455 規定的固定字串
const GUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey 計算 Sec-WebSocket-Accept = base64(SHA-1(key + GUID))
func AcceptKey(key string) string {
	h := sha1.New() // #nosec G401
	h.Write([]byte(key))
	h.Write([]byte(GUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// ClientKey 取出並驗證握手請求中的金鑰
func ClientKey(h http.Header) (string, error) {
	key := strings.TrimSpace(h.Get("Sec-WebSocket-Key"))
	if key == "" {
		return "", ErrMissingKey
	}
	return key, nil
}

// HandshakeResponse 產生 101 Switching Protocols 回應
func HandshakeResponse(key string) []byte {
	return []byte("HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + AcceptKey(key) + "\r\n\r\n")
}

// IsUpgradeRequest 判斷是否為 WebSocket 升級請求
func IsUpgradeRequest(r *http.Request) bool {
	return headerContainsToken(r.Header.Get("Connection"), "upgrade") &&
		headerContainsToken(r.Header.Get("Upgrade"), "websocket")
}

func headerContainsToken(header, token string) bool {
	for _, h := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(h), token) {
			return true
		}
	}
	return false
}
