// internal/storage/model.go
//
// 定義「資料持久化層 (storage layer)」的結構模型。
// 格式沿用既有的 users.json：最外層為 帳號 → 帳戶資料 的物件，
// 欄位名稱必須逐字保留，才能與既有檔案互通。
//
//	{
//	  "admin": {"password": ..., "balance": ..., "transaction_history": [...]},
//	  "alice": {"password": ..., "balance": ..., "login_attempts": 0, "is_locked": false, "transaction_history": [...]}
//	}
package storage

import (
	"encoding/json"
	"fmt"
)

// Snapshot 為整個帳本的快照：帳號 → Entry。
type Snapshot map[string]Entry

// Entry 為單一帳戶在儲存層的序列化格式。
// 管理員帳戶不寫 login_attempts / is_locked，因此兩者以指標表示「不存在」。
type Entry struct {
	Password           string        `json:"password"`
	Balance            int64         `json:"balance"`
	LoginAttempts      *int          `json:"login_attempts,omitempty"`
	IsLocked           *bool         `json:"is_locked,omitempty"`
	TransactionHistory []Transaction `json:"transaction_history"`
}

// Transaction 為一筆交易紀錄。Denominations 為 nil 時輸出 JSON null。
type Transaction struct {
	Transaction   string         `json:"transaction"`
	Denominations map[string]int `json:"denominations"`
}

// UnmarshalJSON 同時接受物件與純字串。
// 舊版程式在加標籤時會把整筆紀錄改寫成字串，這裡把它還原成沒有明細的紀錄。
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Transaction{Transaction: s}
		return nil
	}

	type plain Transaction
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("transaction record: %w", err)
	}
	*t = Transaction(p)
	return nil
}
