// Package bank 定義核心領域模型與業務規則。
// 本檔定義兩種帳戶型態（一般帳戶 Account、管理員 Admin）與交易紀錄 Record，
// 不含任何 CLI 或儲存細節。

package bank

import (
	"crypto/subtle"
	"fmt"
	"time"
)

const (
	// MinBalance 為一般帳戶的最低餘額，也是新帳戶的開戶金額。
	MinBalance int64 = 5000
	// MaxDeposit 為單筆存款上限。
	MaxDeposit int64 = 100000
	// MaxWithdraw 為單筆提款上限。
	MaxWithdraw int64 = 50000
	// MaxAttempts 為連續密碼錯誤幾次後鎖定。
	MaxAttempts = 3
)

// Kind 區分帳戶型態。
type Kind string

const (
	KindRegular Kind = "regular"
	KindAdmin   Kind = "admin"
)

// Holder 為兩種帳戶共用的能力集合：識別、餘額、交易紀錄、密碼驗證。
type Holder interface {
	ID() string
	Kind() Kind
	Balance() int64
	History() []Record
	Authenticate(password string) error
	TagLastTransaction(tag string) error
}

// Record represents a transaction record.
// Denominations 僅存款有值；提款紀錄為 nil。
type Record struct {
	Transaction   string
	Denominations Denominations
}

// holder 保存兩種帳戶共有的狀態。
type holder struct {
	id       string
	password string
	balance  int64
	history  []Record
}

func (h *holder) ID() string     { return h.id }
func (h *holder) Balance() int64 { return h.balance }

// History 回傳交易紀錄的深拷貝，避免外部改寫內部切片。
func (h *holder) History() []Record {
	out := make([]Record, len(h.history))
	for i, r := range h.history {
		out[i] = Record{Transaction: r.Transaction, Denominations: r.Denominations.clone()}
	}
	return out
}

// TagLastTransaction 在最後一筆紀錄尾端附加 " [Tag: <tag>]"。
// 重複呼叫會重複附加，不做去重。
func (h *holder) TagLastTransaction(tag string) error {
	if len(h.history) == 0 {
		return ErrEmptyHistory
	}
	last := &h.history[len(h.history)-1]
	last.Transaction = fmt.Sprintf("%s [Tag: %s]", last.Transaction, tag)
	return nil
}

func (h *holder) matches(password string) bool {
	return subtle.ConstantTimeCompare([]byte(h.password), []byte(password)) == 1
}

// guard 為登入嘗試計數與鎖定狀態。
type guard struct {
	attempts int
	locked   bool
}

// check 依序：已鎖定 → 直接拒絕（不看密碼、不累加）；
// 密碼正確 → 歸零；錯誤 → 累加，達 MaxAttempts 時鎖定。
func (g *guard) check(match func() bool) error {
	if g.locked {
		return ErrLocked
	}
	if match() {
		g.attempts = 0
		return nil
	}
	g.attempts++
	if g.attempts >= MaxAttempts {
		g.locked = true
	}
	return &AttemptsError{Remaining: max(MaxAttempts-g.attempts, 0)}
}

// Account 為一般使用者帳戶。餘額在任何成功操作後皆 >= MinBalance。
type Account struct {
	holder
	guard
	now func() time.Time
}

func newAccount(id, password string, now func() time.Time) *Account {
	return &Account{
		holder: holder{id: id, password: password, balance: MinBalance},
		now:    now,
	}
}

func (a *Account) Kind() Kind { return KindRegular }

// CheckBalance 為純讀取。
func (a *Account) CheckBalance() int64 { return a.balance }

func (a *Account) LoginAttempts() int { return a.attempts }
func (a *Account) Locked() bool       { return a.locked }

// Authenticate 驗證密碼並更新嘗試次數／鎖定狀態。
func (a *Account) Authenticate(password string) error {
	return a.guard.check(func() bool { return a.matches(password) })
}

// Deposit 存款：總額 <= MaxDeposit 才入帳，並記錄面額明細。
// 失敗時不變更任何狀態。回傳存入的總額。
func (a *Account) Deposit(d Denominations) (int64, error) {
	total, err := d.Total()
	if err != nil {
		return 0, err
	}
	if total > MaxDeposit {
		return 0, ErrDepositLimit
	}
	a.balance += total
	a.history = append(a.history, Record{
		Transaction:   fmt.Sprintf("Deposited $%d on %s", total, stamp(a.now())),
		Denominations: d.clone(),
	})
	return total, nil
}

// Withdraw 提款：總額 <= MaxWithdraw 且提款後餘額 >= MinBalance 才扣款。
// 提款紀錄只保存文字描述，不保存面額明細。
func (a *Account) Withdraw(d Denominations) (int64, error) {
	total, err := d.Total()
	if err != nil {
		return 0, err
	}
	if total > MaxWithdraw {
		return 0, ErrWithdrawLimit
	}
	if a.balance-total < MinBalance {
		return 0, ErrInsufficient
	}
	a.balance -= total
	a.history = append(a.history, Record{
		Transaction: fmt.Sprintf("Withdrew $%d on %s", total, stamp(a.now())),
	})
	return total, nil
}

// ChangePassword 需提供正確的目前密碼；錯誤時不變更。
func (a *Account) ChangePassword(current, next string) error {
	if !a.matches(current) {
		return ErrWrongPassword
	}
	a.password = next
	return nil
}

const (
	// AdminID 為管理員保留帳號。
	AdminID = "admin"
	// MaxBalance 為管理員帳戶餘額上限，於還原快照時檢查。
	MaxBalance int64 = 300000
	// LowBalanceThreshold 低於此值時發出低餘額通知。
	LowBalanceThreshold int64 = 75000
)

// Admin 為管理員帳戶：可彙總所有帳戶餘額並檢查自身低餘額。
// bypassLockout 為 true 時沿用舊行為：密碼正確即登入，不計數也不鎖定。
type Admin struct {
	holder
	guard
	bypassLockout bool
}

func newAdmin(password string, bypassLockout bool) *Admin {
	return &Admin{
		holder:        holder{id: AdminID, password: password, balance: MinBalance},
		bypassLockout: bypassLockout,
	}
}

func (a *Admin) Kind() Kind { return KindAdmin }

func (a *Admin) Authenticate(password string) error {
	if a.bypassLockout {
		if a.matches(password) {
			return nil
		}
		return ErrWrongPassword
	}
	return a.guard.check(func() bool { return a.matches(password) })
}

// AggregateBalance 加總傳入的餘額；是否包含管理員本身由呼叫端決定。
func (a *Admin) AggregateBalance(balances []int64) int64 {
	var total int64
	for _, b := range balances {
		total += b
	}
	return total
}

// Notice 為低餘額通知。
type Notice struct {
	Message   string
	Balance   int64
	Threshold int64
}

// NotifyLowBalance 在管理員餘額低於 LowBalanceThreshold 時回傳通知，
// 是否輸出由呼叫端決定。
func (a *Admin) NotifyLowBalance() (Notice, bool) {
	if a.balance >= LowBalanceThreshold {
		return Notice{}, false
	}
	return Notice{
		Message:   fmt.Sprintf("Admin balance is less than %dk.", LowBalanceThreshold/1000),
		Balance:   a.balance,
		Threshold: LowBalanceThreshold,
	}, true
}

// stamp 產生交易描述用的時間字串，例如 "2024-01-02 at 15:04:05"。
func stamp(t time.Time) string {
	return t.Format("2006-01-02 at 15:04:05")
}
