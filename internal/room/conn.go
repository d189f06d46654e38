package room

// Conn 房間看到的連線
//
// 房間只持有連線的綁定，不擁有連線本身；連線由傳輸層建立與銷毀。
// 房間會在持有自己的鎖時呼叫 Send，因此實作必須：
//   - 不阻塞（佇列滿時丟棄並回傳 false）
//   - 不回頭呼叫房間或 Session 的方法
type Conn interface {
	ID() string
	Send(msg []byte) bool
	Close()
}
