// internal/storage/backend.go
//
// Backend 抽象化帳本的讀寫位置。目前有兩種實作：
//   - JSONFile：單一 JSON 檔（預設，與 users.json 互通）
//   - SQLite：每個帳號一列的 key/value 資料表
package storage

import (
	"context"
	"errors"
)

// ErrMalformed 代表持久化內容無法解析。
var ErrMalformed = errors.New("malformed ledger data")

// Backend 讀取與寫入完整快照。
// Load 在資料尚不存在時回傳空快照與 nil error。
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}
