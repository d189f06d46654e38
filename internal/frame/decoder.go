package frame

import "unicode/utf8"

// Message 交給上層的完整訊息
//
// 只會出現三種操作碼：OpText（已重組、已驗證 UTF-8）、OpPing、OpClose。
type Message struct {
	Opcode  Opcode
	Payload []byte
}

// Decoder 每個連線一個的累積解碼器
//
// 非併發安全：只應由該連線的讀取 goroutine 使用。
type Decoder struct {
	buf        []byte
	maxPayload int

	// 分片重組
	fragOp    Opcode
	fragments []byte
	inFrag    bool
}

// NewDecoder 創建解碼器，maxPayload <= 0 時使用預設上限
func NewDecoder(maxPayload int) *Decoder {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Decoder{maxPayload: maxPayload}
}

// Buffered 尚未消耗的位元組數（不完整的幀）
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Feed 追加收到的位元組並解出所有完整訊息
//
// 遇到 close 幀後停止解析，後續位元組沒有意義。
// 無法辨識的操作碼、二進位訊息與 pong 直接丟棄；分片順序錯誤是協定錯誤。
func (d *Decoder) Feed(chunk []byte) ([]Message, error) {
	d.buf = append(d.buf, chunk...)

	var (
		out      []Message
		consumed int
	)

	defer func() {
		if consumed > 0 {
			n := copy(d.buf, d.buf[consumed:])
			d.buf = d.buf[:n]
		}
	}()

	for {
		f, n, err := Parse(d.buf[consumed:], d.maxPayload)
		if err != nil {
			return out, err
		}
		if f == nil {
			return out, nil
		}
		consumed += n

		switch f.Opcode {
		case OpClose:
			return append(out, Message{Opcode: OpClose, Payload: f.Payload}), nil

		case OpPing:
			out = append(out, Message{Opcode: OpPing, Payload: f.Payload})

		case OpText, OpBinary:
			if d.inFrag {
				return out, ErrFragmentInProgress
			}
			if f.Fin {
				if f.Opcode == OpText {
					if !utf8.Valid(f.Payload) {
						return out, ErrInvalidUTF8
					}
					out = append(out, Message{Opcode: OpText, Payload: f.Payload})
				}
				continue
			}
			d.inFrag = true
			d.fragOp = f.Opcode
			d.fragments = append(d.fragments[:0], f.Payload...)

		case OpContinuation:
			if !d.inFrag {
				return out, ErrUnexpectedContinuation
			}
			if len(d.fragments)+len(f.Payload) > d.maxPayload {
				return out, ErrFrameTooLarge
			}
			d.fragments = append(d.fragments, f.Payload...)
			if !f.Fin {
				continue
			}
			d.inFrag = false
			if d.fragOp != OpText {
				continue
			}
			if !utf8.Valid(d.fragments) {
				return out, ErrInvalidUTF8
			}
			payload := make([]byte, len(d.fragments))
			copy(payload, d.fragments)
			out = append(out, Message{Opcode: OpText, Payload: payload})

		default:
			// pong 與保留操作碼
		}
	}
}
