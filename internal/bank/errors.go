// internal/bank/errors.go
//
// 本檔集中定義「領域錯誤（domain errors）」。
// 這些錯誤屬於商業邏輯層級（非系統錯誤），由上層 session 轉換成對應的提示訊息。
// 呼叫端一律以 errors.Is / errors.As 判斷，不比對字串。

package bank

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID 代表帳號已存在（含保留的 "admin"）。
	ErrDuplicateID = errors.New("account id already exists")

	// ErrUnknownID 代表登入或操作時找不到帳號。
	ErrUnknownID = errors.New("unknown account id")

	// ErrWrongPassword 代表密碼比對失敗（登入或變更密碼）。
	ErrWrongPassword = errors.New("wrong password")

	// ErrLocked 代表帳戶已被鎖定，不再檢查密碼。
	ErrLocked = errors.New("account is locked")

	// ErrDepositLimit 代表單筆存款超過 MaxDeposit。
	ErrDepositLimit = errors.New("deposit exceeds limit")

	// ErrWithdrawLimit 代表單筆提款超過 MaxWithdraw。
	ErrWithdrawLimit = errors.New("withdrawal exceeds limit")

	// ErrInsufficient 代表提款後餘額會低於 MinBalance。
	ErrInsufficient = errors.New("insufficient balance")

	// ErrEmptyHistory 代表沒有任何交易紀錄可以加上標籤。
	ErrEmptyHistory = errors.New("no transactions to tag")

	// ErrBadDenomination 代表面額或張數不合法（非數字、面額 <= 0、張數 < 0）。
	ErrBadDenomination = errors.New("invalid denomination")

	// ErrBadAmount 代表面額加總後的金額非法（<= 0 或溢位）。
	ErrBadAmount = errors.New("amount must be > 0")

	// ErrInvalidInput 代表帳號或密碼格式不符。
	ErrInvalidInput = errors.New("invalid input")

	// ErrCorruptSnapshot 代表持久化資料內容不合法，無法還原。
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// ErrPersist 代表操作已在記憶體中生效，但寫入 backend 失敗。
	ErrPersist = errors.New("save ledger")
)

// AttemptsError 為密碼錯誤時回傳的錯誤，附帶剩餘嘗試次數。
// Remaining 為 0 時表示這次失敗觸發了鎖定，同時符合 ErrLocked。
type AttemptsError struct {
	Remaining int
}

func (e *AttemptsError) Error() string {
	if e.Remaining == 0 {
		return "wrong password: account locked"
	}
	return fmt.Sprintf("wrong password: %d attempts remaining", e.Remaining)
}

func (e *AttemptsError) Unwrap() []error {
	if e.Remaining == 0 {
		return []error{ErrWrongPassword, ErrLocked}
	}
	return []error{ErrWrongPassword}
}
