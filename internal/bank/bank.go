// internal/bank/bank.go

// Bank 為聚合根 (Aggregate Root)：擁有所有一般帳戶與唯一的管理員帳戶，
// 並負責與 storage.Backend 之間的載入／保存。
// 每個成功的變更操作（開戶、存提款、改密碼、加標籤、登入狀態變化）後立即保存。
// 單一互斥鎖序列化所有操作；session 迴圈與背景自動保存可能同時呼叫。
package bank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"atm/internal/logging"
	"atm/internal/storage"
)

// DefaultAdminPassword 為未設定時的管理員密碼。
const DefaultAdminPassword = "admin_pass"

type Bank struct {
	mu      sync.Mutex
	accts   map[string]*Account
	admin   *Admin
	backend storage.Backend
	log     logging.Logger
	now     func() time.Time

	adminPassword string
	adminBypass   bool
	validate      *validator.Validate
}

type Option func(*Bank)

// WithBackend 設定持久化後端；未設定時 Save 為 no-op。
func WithBackend(be storage.Backend) Option { return func(b *Bank) { b.backend = be } }

func WithLogger(l logging.Logger) Option { return func(b *Bank) { b.log = l } }

// WithClock 替換交易時間來源（測試用）。
func WithClock(now func() time.Time) Option { return func(b *Bank) { b.now = now } }

func WithAdminPassword(pw string) Option { return func(b *Bank) { b.adminPassword = pw } }

// WithAdminLockout 為 false 時管理員登入不計數、不鎖定（舊行為）。
func WithAdminLockout(enabled bool) Option { return func(b *Bank) { b.adminBypass = !enabled } }

// NewBank 建立空白銀行：沒有一般帳戶，管理員以開戶金額建立。
func NewBank(opts ...Option) *Bank {
	b := &Bank{
		accts:         make(map[string]*Account),
		log:           logging.NewNop(),
		now:           time.Now,
		adminPassword: DefaultAdminPassword,
		validate:      newValidator(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.admin = newAdmin(b.adminPassword, b.adminBypass)
	return b
}

// credentials 為開戶／改密碼時的輸入檢核規則。
type credentials struct {
	ID       string `validate:"required,max=64,account_id"`
	Password string `validate:"required,max=128"`
}

const passwordRule = "required,max=128"

// newValidator 註冊 account_id 規則：可列印 ASCII 且不含空白。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("account_id", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if r <= ' ' || r > '~' {
				return false
			}
		}
		return true
	})
	return v
}

func (b *Bank) checkInput(id, password string) error {
	if err := b.validate.Struct(credentials{ID: id, Password: password}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Load 從 backend 讀取快照並還原；資料不存在時保持空白銀行。
func (b *Bank) Load(ctx context.Context) error {
	if b.backend == nil {
		return nil
	}
	snap, err := b.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if err := b.Restore(snap); err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	b.log.Info(ctx, "ledger loaded", "accounts", len(snap))
	return nil
}

// Save 將目前狀態寫入 backend。
func (b *Bank) Save(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.persistLocked(ctx)
}

func (b *Bank) persistLocked(ctx context.Context) error {
	if b.backend == nil {
		return nil
	}
	if err := b.backend.Save(ctx, b.snapshotLocked()); err != nil {
		b.log.Error(ctx, "ledger save failed", "error", err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// CreateAccount 開戶：帳號不得重複（含保留的 "admin"），餘額為 MinBalance。
// 開戶成功後立即保存；保存失敗時帳戶仍留在記憶體中並回傳保存錯誤。
func (b *Bank) CreateAccount(ctx context.Context, id, password string) error {
	if err := b.checkInput(id, password); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.accts[id]; ok || id == AdminID {
		return ErrDuplicateID
	}
	b.accts[id] = newAccount(id, password, b.now)
	b.log.Info(ctx, "account created", "account", id)
	return b.persistLocked(ctx)
}

// Login 依帳號分派驗證：admin 走管理員規則，其餘走一般帳戶的嘗試計數與鎖定。
// 成功時回傳帳戶 handle；變更狀態請透過 Bank 的方法，才會保存。
// 嘗試次數有變化但保存失敗時，錯誤另外附上 ErrPersist：
// 驗證成功則同時回傳 handle 與該錯誤，驗證失敗則與驗證錯誤合併。
func (b *Bank) Login(ctx context.Context, id, password string) (Holder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id == AdminID {
		if err := b.admin.Authenticate(password); err != nil {
			b.log.Warn(ctx, "admin login failed", "error", err)
			return nil, err
		}
		b.log.Info(ctx, "admin logged in")
		return b.admin, nil
	}

	a, ok := b.accts[id]
	if !ok {
		return nil, ErrUnknownID
	}
	before := a.attempts
	authErr := a.Authenticate(password)
	if authErr != nil {
		b.log.Warn(ctx, "login failed", "account", id, "error", authErr)
	} else {
		b.log.Info(ctx, "logged in", "account", id)
	}

	// 嘗試次數或鎖定狀態有變化才需要保存
	var saveErr error
	if a.attempts != before {
		saveErr = b.persistLocked(ctx)
	}
	if authErr != nil {
		return nil, errors.Join(authErr, saveErr)
	}
	if saveErr != nil {
		return a, saveErr
	}
	return a, nil
}

func (b *Bank) accountLocked(id string) (*Account, error) {
	a, ok := b.accts[id]
	if !ok {
		return nil, ErrUnknownID
	}
	return a, nil
}

func (b *Bank) holderLocked(id string) (Holder, error) {
	if id == AdminID {
		return b.admin, nil
	}
	return b.accountLocked(id)
}

// Deposit 存款並保存，回傳新餘額。
func (b *Bank) Deposit(ctx context.Context, id string, d Denominations) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, err := b.accountLocked(id)
	if err != nil {
		return 0, err
	}
	total, err := a.Deposit(d)
	if err != nil {
		b.log.Warn(ctx, "deposit rejected", "account", id, "error", err)
		return a.balance, err
	}
	b.log.Info(ctx, "deposit", "account", id, "amount", total, "balance", a.balance)
	return a.balance, b.persistLocked(ctx)
}

// Withdraw 提款並保存，回傳新餘額。
func (b *Bank) Withdraw(ctx context.Context, id string, d Denominations) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, err := b.accountLocked(id)
	if err != nil {
		return 0, err
	}
	total, err := a.Withdraw(d)
	if err != nil {
		b.log.Warn(ctx, "withdrawal rejected", "account", id, "error", err)
		return a.balance, err
	}
	b.log.Info(ctx, "withdrawal", "account", id, "amount", total, "balance", a.balance)
	return a.balance, b.persistLocked(ctx)
}

// Balance 查詢餘額（含 admin）。
func (b *Bank) Balance(id string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, err := b.holderLocked(id)
	if err != nil {
		return 0, err
	}
	return h.Balance(), nil
}

// History 回傳交易紀錄的拷貝（含 admin）。
func (b *Bank) History(id string) ([]Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, err := b.holderLocked(id)
	if err != nil {
		return nil, err
	}
	return h.History(), nil
}

// ChangePassword 變更一般帳戶密碼並保存。
func (b *Bank) ChangePassword(ctx context.Context, id, current, next string) error {
	if err := b.validate.Var(next, passwordRule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	a, err := b.accountLocked(id)
	if err != nil {
		return err
	}
	if err := a.ChangePassword(current, next); err != nil {
		b.log.Warn(ctx, "password change rejected", "account", id)
		return err
	}
	b.log.Info(ctx, "password changed", "account", id)
	return b.persistLocked(ctx)
}

// TagLastTransaction 為最後一筆交易加上標籤並保存。
func (b *Bank) TagLastTransaction(ctx context.Context, id, tag string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, err := b.holderLocked(id)
	if err != nil {
		return err
	}
	if err := h.TagLastTransaction(tag); err != nil {
		return err
	}
	b.log.Info(ctx, "transaction tagged", "account", id)
	return b.persistLocked(ctx)
}

// Accounts 回傳排序後的一般帳號清單。
func (b *Bank) Accounts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.accts))
	for id := range b.accts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TotalBalance 彙總所有一般帳戶餘額（不含 admin 本身）。
func (b *Bank) TotalBalance() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	balances := make([]int64, 0, len(b.accts))
	for _, a := range b.accts {
		balances = append(balances, a.balance)
	}
	return b.admin.AggregateBalance(balances)
}

// LowBalanceNotice 回傳管理員低餘額通知（若有）。
func (b *Bank) LowBalanceNotice() (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.admin.NotifyLowBalance()
}
