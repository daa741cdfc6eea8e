// internal/bank/bank_test.go
//
// 本檔為 Bank 模組的單元與整合測試。
// 覆蓋：開戶、存提款限制、最低餘額、登入鎖定、加標籤、改密碼、管理員彙總，
// 以及透過 storage.Backend 的保存與還原。

package bank

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atm/internal/storage"
)

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// memBackend 為記憶體版 Backend，記錄 Save 呼叫次數。
type memBackend struct {
	mu    sync.Mutex
	snap  storage.Snapshot
	saves int
	err   error
}

func (m *memBackend) Load(context.Context) (storage.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return storage.Snapshot{}, nil
	}
	return m.snap, nil
}

func (m *memBackend) Save(_ context.Context, s storage.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.snap = s
	return nil
}

func newTestBank(t *testing.T, opts ...Option) (*Bank, *memBackend) {
	t.Helper()
	be := &memBackend{}
	opts = append([]Option{WithBackend(be), WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewBank(opts...), be
}

// open 開戶並立即登入，回傳一般帳戶 handle。
func open(t *testing.T, b *Bank, id, pw string) *Account {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, b.CreateAccount(ctx, id, pw))
	h, err := b.Login(ctx, id, pw)
	require.NoError(t, err)
	a, ok := h.(*Account)
	require.True(t, ok, "want *Account, got %T", h)
	return a
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	b, be := newTestBank(t)

	a := open(t, b, "alice", "pw1")
	assert.Equal(t, MinBalance, a.CheckBalance())
	assert.Equal(t, 0, a.LoginAttempts())
	assert.False(t, a.Locked())
	assert.Empty(t, a.History())
	assert.Equal(t, KindRegular, a.Kind())
	assert.Equal(t, 1, be.saves, "create must persist")

	// 重複帳號：失敗且原帳戶不受影響
	_, err := b.Deposit(ctx, "alice", Denominations{100: 5})
	require.NoError(t, err)
	require.ErrorIs(t, b.CreateAccount(ctx, "alice", "other"), ErrDuplicateID)
	bal, err := b.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5500), bal)
	_, err = b.Login(ctx, "alice", "pw1")
	require.NoError(t, err, "password must be untouched")

	// admin 為保留帳號
	require.ErrorIs(t, b.CreateAccount(ctx, AdminID, "x"), ErrDuplicateID)

	assert.Equal(t, []string{"alice"}, b.Accounts())
}

func TestCreateAccountInvalidInput(t *testing.T) {
	ctx := context.Background()
	b, be := newTestBank(t)

	for _, tc := range []struct{ id, pw string }{
		{"", "pw"},
		{"bob", ""},
		{"bob smith", "pw"},
		{"tab\tid", "pw"},
	} {
		err := b.CreateAccount(ctx, tc.id, tc.pw)
		assert.ErrorIs(t, err, ErrInvalidInput, "id=%q pw=%q", tc.id, tc.pw)
	}
	assert.Empty(t, b.Accounts())
	assert.Equal(t, 0, be.saves)
}

func TestDepositLimits(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBank(t)
	a := open(t, b, "alice", "pw1")

	// ✅ 上限內：餘額增加且新增一筆含面額明細的紀錄
	bal, err := b.Deposit(ctx, "alice", Denominations{1000: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(105000), bal)

	hist := a.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "Deposited $100000 on 2024-01-02 at 03:04:05", hist[0].Transaction)
	assert.Equal(t, Denominations{1000: 100}, hist[0].Denominations)

	// ❌ 超過上限：狀態不變
	bal, err = b.Deposit(ctx, "alice", Denominations{1000: 100, 1: 1})
	require.ErrorIs(t, err, ErrDepositLimit)
	assert.Equal(t, int64(105000), bal)
	assert.Len(t, a.History(), 1)

	// ❌ 不合法面額
	_, err = b.Deposit(ctx, "alice", Denominations{-100: 1})
	require.ErrorIs(t, err, ErrBadDenomination)
	_, err = b.Deposit(ctx, "alice", Denominations{100: 0})
	require.ErrorIs(t, err, ErrBadAmount)
	// ❌ 空的面額明細不會記成 $0 存款
	_, err = b.Deposit(ctx, "alice", Denominations{})
	require.ErrorIs(t, err, ErrBadAmount)
	assert.Equal(t, int64(105000), a.CheckBalance())
	assert.Len(t, a.History(), 1)

	// ❌ 不存在的帳號
	_, err = b.Deposit(ctx, "ghost", Denominations{100: 1})
	require.ErrorIs(t, err, ErrUnknownID)
}

func TestWithdrawRules(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBank(t)
	a := open(t, b, "alice", "pw1")
	_, err := b.Deposit(ctx, "alice", Denominations{1000: 60})
	require.NoError(t, err)

	_, err = b.Withdraw(ctx, "alice", Denominations{1000: 51})
	require.ErrorIs(t, err, ErrWithdrawLimit)

	bal, err := b.Withdraw(ctx, "alice", Denominations{1000: 20, 500: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(44000), bal)

	hist := a.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "Withdrew $21000 on 2024-01-02 at 03:04:05", hist[1].Transaction)
	assert.Nil(t, hist[1].Denominations, "withdrawals keep no breakdown")

	// 提款後低於最低餘額
	_, err = b.Withdraw(ctx, "alice", Denominations{1000: 40})
	require.ErrorIs(t, err, ErrInsufficient)
	assert.Equal(t, int64(44000), a.CheckBalance())
	assert.Len(t, a.History(), 2)
}

// TestScenario 依序：超過提款上限 → 餘額不足 → 存款 → 提到剛好剩最低餘額。
func TestScenario(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBank(t)
	open(t, b, "alice", "pw1")

	_, err := b.Withdraw(ctx, "alice", Denominations{1000: 51})
	require.ErrorIs(t, err, ErrWithdrawLimit)
	bal, _ := b.Balance("alice")
	require.Equal(t, int64(5000), bal)

	_, err = b.Withdraw(ctx, "alice", Denominations{1000: 45})
	require.ErrorIs(t, err, ErrInsufficient)
	bal, _ = b.Balance("alice")
	require.Equal(t, int64(5000), bal)

	bal, err = b.Deposit(ctx, "alice", Denominations{1000: 50})
	require.NoError(t, err)
	require.Equal(t, int64(55000), bal)

	bal, err = b.Withdraw(ctx, "alice", Denominations{1000: 50})
	require.NoError(t, err)
	require.Equal(t, int64(5000), bal)
}

func TestLoginLockout(t *testing.T) {
	ctx := context.Background()
	b, be := newTestBank(t)
	require.NoError(t, b.CreateAccount(ctx, "alice", "pw1"))

	_, err := b.Login(ctx, "nobody", "pw1")
	require.ErrorIs(t, err, ErrUnknownID)

	// 兩次失敗後成功 → 歸零
	for want := 2; want >= 1; want-- {
		_, err = b.Login(ctx, "alice", "bad")
		var ae *AttemptsError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, want, ae.Remaining)
		assert.ErrorIs(t, err, ErrWrongPassword)
		assert.NotErrorIs(t, err, ErrLocked)
	}
	h, err := b.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	a := h.(*Account)
	assert.Equal(t, 0, a.LoginAttempts())

	// 連續三次失敗 → 鎖定
	for i := 0; i < MaxAttempts; i++ {
		_, err = b.Login(ctx, "alice", "bad")
	}
	require.ErrorIs(t, err, ErrLocked)
	assert.True(t, a.Locked())
	assert.Equal(t, MaxAttempts, a.LoginAttempts())

	// 鎖定後：正確密碼也拒絕，且不再累加、不再保存
	saves := be.saves
	_, err = b.Login(ctx, "alice", "pw1")
	require.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, MaxAttempts, a.LoginAttempts())
	assert.Equal(t, saves, be.saves)

	// 鎖定狀態有寫入快照
	entry := be.snap["alice"]
	require.NotNil(t, entry.IsLocked)
	assert.True(t, *entry.IsLocked)
	assert.Equal(t, MaxAttempts, *entry.LoginAttempts)
}

func TestAdminLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("lockout by default", func(t *testing.T) {
		b, _ := newTestBank(t, WithAdminPassword("root"))
		h, err := b.Login(ctx, AdminID, "root")
		require.NoError(t, err)
		assert.Equal(t, KindAdmin, h.Kind())

		for i := 0; i < MaxAttempts; i++ {
			_, err = b.Login(ctx, AdminID, "bad")
		}
		require.ErrorIs(t, err, ErrLocked)
		_, err = b.Login(ctx, AdminID, "root")
		require.ErrorIs(t, err, ErrLocked)
	})

	t.Run("legacy bypass", func(t *testing.T) {
		b, _ := newTestBank(t, WithAdminLockout(false))
		for i := 0; i < MaxAttempts+2; i++ {
			_, err := b.Login(ctx, AdminID, "bad")
			require.ErrorIs(t, err, ErrWrongPassword)
			require.NotErrorIs(t, err, ErrLocked)
		}
		h, err := b.Login(ctx, AdminID, DefaultAdminPassword)
		require.NoError(t, err)
		assert.Equal(t, AdminID, h.ID())
	})
}

func TestTagLastTransaction(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBank(t)
	a := open(t, b, "alice", "pw1")

	require.ErrorIs(t, b.TagLastTransaction(ctx, "alice", "rent"), ErrEmptyHistory)
	assert.Empty(t, a.History())

	_, err := b.Deposit(ctx, "alice", Denominations{100: 1})
	require.NoError(t, err)
	_, err = b.Deposit(ctx, "alice", Denominations{100: 2})
	require.NoError(t, err)

	require.NoError(t, b.TagLastTransaction(ctx, "alice", "rent"))
	require.NoError(t, b.TagLastTransaction(ctx, "alice", "rent"))

	hist, err := b.History("alice")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "Deposited $100 on 2024-01-02 at 03:04:05", hist[0].Transaction)
	assert.Equal(t, "Deposited $200 on 2024-01-02 at 03:04:05 [Tag: rent] [Tag: rent]", hist[1].Transaction)
	assert.Equal(t, Denominations{100: 2}, hist[1].Denominations)
}

func TestHistoryIsACopy(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBank(t)
	open(t, b, "alice", "pw1")
	_, err := b.Deposit(ctx, "alice", Denominations{100: 1})
	require.NoError(t, err)

	hist, _ := b.History("alice")
	hist[0].Transaction = "mutated"
	hist[0].Denominations[100] = 99

	again, _ := b.History("alice")
	assert.NotEqual(t, "mutated", again[0].Transaction)
	assert.Equal(t, 1, again[0].Denominations[100])
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBank(t)
	open(t, b, "alice", "pw1")

	require.ErrorIs(t, b.ChangePassword(ctx, "alice", "wrong", "pw2"), ErrWrongPassword)
	_, err := b.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	require.ErrorIs(t, b.ChangePassword(ctx, "alice", "pw1", ""), ErrInvalidInput)
	require.ErrorIs(t, b.ChangePassword(ctx, "ghost", "pw1", "pw2"), ErrUnknownID)

	require.NoError(t, b.ChangePassword(ctx, "alice", "pw1", "pw2"))
	_, err = b.Login(ctx, "alice", "pw2")
	require.NoError(t, err)
}

func TestAdminAggregation(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBank(t)
	open(t, b, "alice", "a")
	open(t, b, "bob", "b")
	_, err := b.Deposit(ctx, "bob", Denominations{500: 3})
	require.NoError(t, err)

	assert.Equal(t, int64(5000+6500), b.TotalBalance())

	n, ok := b.LowBalanceNotice()
	require.True(t, ok, "fresh admin sits at MinBalance")
	assert.Equal(t, MinBalance, n.Balance)
	assert.Equal(t, LowBalanceThreshold, n.Threshold)
	assert.Equal(t, "Admin balance is less than 75k.", n.Message)

	admin := newAdmin("x", false)
	admin.balance = LowBalanceThreshold
	_, ok = admin.NotifyLowBalance()
	assert.False(t, ok)
	assert.Equal(t, int64(6), admin.AggregateBalance([]int64{1, 2, 3}))
	assert.Equal(t, int64(0), admin.AggregateBalance(nil))
}

func TestSavePersistsAfterEachMutation(t *testing.T) {
	ctx := context.Background()
	b, be := newTestBank(t)
	open(t, b, "alice", "pw1")

	_, _ = b.Deposit(ctx, "alice", Denominations{100: 1})
	_, _ = b.Withdraw(ctx, "alice", Denominations{1000: 100})
	_ = b.ChangePassword(ctx, "alice", "pw1", "pw2")
	_ = b.TagLastTransaction(ctx, "alice", "x")
	_, _ = b.Deposit(ctx, "alice", Denominations{1000000: 1})

	// 開戶、存款、改密碼、加標籤各一次；被拒絕的操作不保存
	assert.Equal(t, 4, be.saves)
}

func TestSaveErrorIsReported(t *testing.T) {
	ctx := context.Background()
	b, be := newTestBank(t)
	open(t, b, "alice", "pw1")

	be.err = errors.New("disk full")
	bal, err := b.Deposit(ctx, "alice", Denominations{100: 1})
	require.ErrorIs(t, err, ErrPersist)
	assert.NotErrorIs(t, err, ErrDepositLimit)
	assert.Equal(t, int64(5100), bal, "in-memory state keeps the deposit")
}

func TestLoginReportsSaveFailure(t *testing.T) {
	ctx := context.Background()
	b, be := newTestBank(t)
	require.NoError(t, b.CreateAccount(ctx, "alice", "pw1"))
	be.err = errors.New("disk full")

	// ❌ 密碼錯誤：仍可取得剩餘次數，同時得知鎖定狀態沒有保存
	h, err := b.Login(ctx, "alice", "bad")
	assert.Nil(t, h)
	var ae *AttemptsError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, MaxAttempts-1, ae.Remaining)
	assert.ErrorIs(t, err, ErrPersist)

	// ✅ 密碼正確：登入成功，歸零的次數沒有保存
	h, err = b.Login(ctx, "alice", "pw1")
	require.NotNil(t, h)
	require.ErrorIs(t, err, ErrPersist)
	assert.NotErrorIs(t, err, ErrWrongPassword)
	assert.Equal(t, 0, h.(*Account).LoginAttempts())

	// 次數沒有變化時不保存，也就沒有錯誤
	h, err = b.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.NotNil(t, h)
}

func TestRoundTripJSONFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")

	b := NewBank(WithBackend(storage.NewJSONFile(path)), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, b.Load(ctx), "missing file yields an empty bank")
	assert.Empty(t, b.Accounts())

	require.NoError(t, b.CreateAccount(ctx, "alice", "pw1"))
	require.NoError(t, b.CreateAccount(ctx, "bob", "pw2"))
	_, err := b.Deposit(ctx, "alice", Denominations{100: 5})
	require.NoError(t, err)
	require.NoError(t, b.TagLastTransaction(ctx, "alice", "salary"))
	_, _ = b.Login(ctx, "bob", "bad")
	require.NoError(t, b.Save(ctx))

	b2 := NewBank(WithBackend(storage.NewJSONFile(path)))
	require.NoError(t, b2.Load(ctx))

	assert.Equal(t, []string{"alice", "bob"}, b2.Accounts())
	bal, err := b2.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5500), bal)

	h1, _ := b.History("alice")
	h2, _ := b2.History("alice")
	assert.Equal(t, h1, h2)

	assert.Equal(t, b.Snapshot(), b2.Snapshot())

	_, err = b2.Login(ctx, "bob", "bad")
	var ae *AttemptsError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, ae.Remaining, "attempt counter survives reload")
}

func TestRestoreRejectsCorruptSnapshot(t *testing.T) {
	zero, no := 0, false
	tooMany := MaxAttempts + 1

	cases := map[string]storage.Snapshot{
		"admin over max balance": {AdminID: {Balance: MaxBalance + 1}},
		"missing login state":    {"alice": {Password: "x", Balance: 5000}},
		"attempts out of range":  {"alice": {Password: "x", Balance: 5000, LoginAttempts: &tooMany, IsLocked: &no}},
		"bad denomination key": {"alice": {Password: "x", Balance: 5000, LoginAttempts: &zero, IsLocked: &no,
			TransactionHistory: []storage.Transaction{{Transaction: "t", Denominations: map[string]int{"abc": 1}}}}},
		"duplicate denomination key": {"alice": {Password: "x", Balance: 5000, LoginAttempts: &zero, IsLocked: &no,
			TransactionHistory: []storage.Transaction{{Transaction: "t", Denominations: map[string]int{"100": 1, "0100": 2}}}}},
	}
	for name, snap := range cases {
		t.Run(name, func(t *testing.T) {
			b, _ := newTestBank(t)
			require.NoError(t, b.CreateAccount(context.Background(), "keep", "pw"))

			err := b.Restore(snap)
			require.ErrorIs(t, err, ErrCorruptSnapshot)
			assert.Equal(t, []string{"keep"}, b.Accounts(), "failed restore leaves state untouched")
		})
	}
}

func TestRestoreAdminKeepsConfiguredPassword(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBank(t, WithAdminPassword("configured"))

	require.NoError(t, b.Restore(storage.Snapshot{
		AdminID: {Password: "from-file", Balance: 80000, TransactionHistory: []storage.Transaction{{Transaction: "seed"}}},
	}))

	_, err := b.Login(ctx, AdminID, "from-file")
	require.Error(t, err)
	h, err := b.Login(ctx, AdminID, "configured")
	require.NoError(t, err)
	assert.Equal(t, int64(80000), h.Balance())
	assert.Len(t, h.History(), 1)

	_, ok := b.LowBalanceNotice()
	assert.False(t, ok)
	assert.Equal(t, "configured", b.Snapshot()[AdminID].Password)
}

// TestConcurrentDepositsRaceSafety 驗證 session 與背景保存同時操作時資料仍一致。
func TestConcurrentDepositsRaceSafety(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBank(t)
	open(t, b, "alice", "pw1")

	const workers = 100
	var wg sync.WaitGroup
	wg.Add(workers * 2)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := b.Deposit(ctx, "alice", Denominations{1: 1}); err != nil {
				t.Errorf("deposit err: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			_ = b.Save(ctx)
		}()
	}
	wg.Wait()

	bal, err := b.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, MinBalance+workers, bal)
}
