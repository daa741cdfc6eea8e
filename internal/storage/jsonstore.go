// internal/storage/jsonstore.go
//
// 提供 JSON 快照 (Snapshot) 的序列化與反序列化實作。
// 採「原子寫入」策略 (atomic write)：先寫入 .tmp 檔並 fsync，再以 rename() 取代原檔。
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// JSONFile 為以單一 JSON 檔保存帳本的 Backend。
type JSONFile struct {
	path string
}

// NewJSONFile 建立指向 path 的 JSON 檔 Backend；不會預先建立檔案。
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

func (j *JSONFile) Path() string { return j.path }

// Load 讀取快照；檔案不存在時回傳空快照。
func (j *JSONFile) Load(_ context.Context) (Snapshot, error) {
	snap, err := LoadSnapshot(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, nil
	}
	return snap, err
}

func (j *JSONFile) Save(_ context.Context, snap Snapshot) error {
	return SaveSnapshot(j.path, snap)
}

// LoadSnapshot 讀取指定路徑的 JSON 快照。
// 檔案不存在時回傳的錯誤符合 fs.ErrNotExist；內容無法解析時符合 ErrMalformed。
func LoadSnapshot(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var snap Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}

// SaveSnapshot 將 Snapshot 序列化為 JSON 檔案，並採原子方式寫入。
// 流程：寫入 path+".tmp" → Sync → Rename 取代正式檔案。
func SaveSnapshot(path string, snap Snapshot) error {
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	// 使用縮排格式輸出，方便人工檢視
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
