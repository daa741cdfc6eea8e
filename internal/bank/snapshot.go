// internal/bank/snapshot.go
//
// Bank ↔ storage.Snapshot 的轉換。
// admin 只保存 password / balance / transaction_history；
// 一般帳戶另外保存 login_attempts 與 is_locked。

package bank

import (
	"fmt"

	"atm/internal/storage"
)

// Snapshot 匯出目前狀態，供 storage 層序列化。
func (b *Bank) Snapshot() storage.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Bank) snapshotLocked() storage.Snapshot {
	s := make(storage.Snapshot, len(b.accts)+1)
	s[AdminID] = storage.Entry{
		Password:           b.admin.password,
		Balance:            b.admin.balance,
		TransactionHistory: toTransactions(b.admin.history),
	}
	for id, a := range b.accts {
		attempts, locked := a.attempts, a.locked
		s[id] = storage.Entry{
			Password:           a.password,
			Balance:            a.balance,
			LoginAttempts:      &attempts,
			IsLocked:           &locked,
			TransactionHistory: toTransactions(a.history),
		}
	}
	return s
}

// Restore 由快照重建所有帳戶，全部驗證成功才替換目前狀態。
// admin 的密碼不從快照讀取，沿用建構時的設定；其餘欄位缺漏或超出範圍視為 ErrCorruptSnapshot。
func (b *Bank) Restore(s storage.Snapshot) error {
	accts := make(map[string]*Account, len(s))
	admin := newAdmin(b.adminPassword, b.adminBypass)

	for id, e := range s {
		history, err := fromTransactions(e.TransactionHistory)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorruptSnapshot, id, err)
		}

		if id == AdminID {
			if e.Balance > MaxBalance {
				return fmt.Errorf("%w: admin balance %d exceeds %d", ErrCorruptSnapshot, e.Balance, MaxBalance)
			}
			admin.balance = e.Balance
			admin.history = history
			continue
		}

		if e.LoginAttempts == nil || e.IsLocked == nil {
			return fmt.Errorf("%w: %s: missing login state", ErrCorruptSnapshot, id)
		}
		if *e.LoginAttempts < 0 || *e.LoginAttempts > MaxAttempts {
			return fmt.Errorf("%w: %s: login_attempts %d", ErrCorruptSnapshot, id, *e.LoginAttempts)
		}
		a := newAccount(id, e.Password, b.now)
		a.balance = e.Balance
		a.attempts = *e.LoginAttempts
		a.locked = *e.IsLocked
		a.history = history
		accts[id] = a
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.accts = accts
	b.admin = admin
	return nil
}

// toTransactions 一律回傳非 nil 切片，空紀錄輸出為 []。
func toTransactions(in []Record) []storage.Transaction {
	out := make([]storage.Transaction, len(in))
	for i, r := range in {
		out[i] = storage.Transaction{Transaction: r.Transaction, Denominations: r.Denominations.textKeys()}
	}
	return out
}

func fromTransactions(in []storage.Transaction) ([]Record, error) {
	out := make([]Record, 0, len(in))
	for _, t := range in {
		d, err := fromTextKeys(t.Denominations)
		if err != nil {
			return nil, err
		}
		out = append(out, Record{Transaction: t.Transaction, Denominations: d})
	}
	return out, nil
}
