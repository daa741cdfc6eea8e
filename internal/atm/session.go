// internal/atm/session.go
//
// Session 為文字選單的 ATM 介面：主選單 → 一般使用者選單／管理員選單。
// 只負責輸入輸出與訊息呈現，業務規則一律委派給 Ledger（bank.Bank）。
// 同一時間只服務一位使用者；閒置超過 timeout 會自動登出。

package atm

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"atm/internal/bank"
	"atm/internal/logging"
)

// DefaultTimeout 為選單閒置登出時間。
const DefaultTimeout = 30 * time.Second

// Ledger 為 Session 需要的帳本操作。bank.Bank 滿足此介面。
type Ledger interface {
	CreateAccount(ctx context.Context, id, password string) error
	Login(ctx context.Context, id, password string) (bank.Holder, error)
	Deposit(ctx context.Context, id string, d bank.Denominations) (int64, error)
	Withdraw(ctx context.Context, id string, d bank.Denominations) (int64, error)
	Balance(id string) (int64, error)
	History(id string) ([]bank.Record, error)
	ChangePassword(ctx context.Context, id, current, next string) error
	TagLastTransaction(ctx context.Context, id, tag string) error
	TotalBalance() int64
	LowBalanceNotice() (bank.Notice, bool)
}

type Session struct {
	ledger  Ledger
	in      *bufio.Reader
	out     io.Writer
	log     logging.Logger
	id      string
	timeout time.Duration
	now     func() time.Time

	// fd >= 0 時密碼改由終端機以不回顯方式讀取。
	fd int
}

type Option func(*Session)

func WithLogger(l logging.Logger) Option { return func(s *Session) { s.log = l } }

// WithTimeout 設定閒置登出時間；<= 0 時沿用 DefaultTimeout。
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock 替換閒置計時的時間來源（測試用）。
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// WithTerminal 讓密碼輸入改用 fd 所指的終端機，不回顯。
func WithTerminal(fd int) Option { return func(s *Session) { s.fd = fd } }

func NewSession(ledger Ledger, in io.Reader, out io.Writer, opts ...Option) *Session {
	s := &Session{
		ledger:  ledger,
		in:      bufio.NewReader(in),
		out:     out,
		log:     logging.NewNop(),
		id:      uuid.NewString(),
		timeout: DefaultTimeout,
		now:     time.Now,
		fd:      -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("session", s.id)
	return s
}

// ID 回傳本次 session 的識別碼，用於對照日誌。
func (s *Session) ID() string { return s.id }

// Run 執行主選單直到使用者選擇離開、輸入結束 (EOF) 或 ctx 取消。
// 前兩者回傳 nil；ctx 取消時回傳 ctx.Err()。
func (s *Session) Run(ctx context.Context) error {
	s.log.Info(ctx, "session started")
	s.printf("\t\t %s\n", banner)
	s.printf("\t\t|\t\t\t*** Hello, Welcome to the Enhanced ATM ***\t\t\t |\n")
	s.printf("\t\t %s\n", banner)

	err := s.mainMenu(ctx)
	if errors.Is(err, io.EOF) {
		s.log.Info(ctx, "input closed")
		err = nil
	}
	s.log.Info(ctx, "session ended")
	return err
}

func (s *Session) mainMenu(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.printf("\n------Bank Menu------\n")
		s.printf("\n(1) Create Account\n(2) Login\n(3) Admin Login\n(4) Exit\n")
		choice, err := s.choice()
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			err = s.createAccount(ctx)
		case "2":
			err = s.login(ctx)
		case "3":
			err = s.adminLogin(ctx)
		case "4":
			s.printf("\nThank you for using the ATM. Goodbye!\n")
			return nil
		default:
			s.invalidChoice()
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) createAccount(ctx context.Context) error {
	id, err := s.prompt("\nEnter User ID: ")
	if err != nil {
		return err
	}
	pw, err := s.secret("Enter Password: ")
	if err != nil {
		return err
	}

	err = s.ledger.CreateAccount(ctx, id, pw)
	switch {
	case err == nil:
		s.printf("Account created successfully!\n")
	case errors.Is(err, bank.ErrPersist):
		s.printf("Account created successfully!\n")
		s.saveWarning()
	case errors.Is(err, bank.ErrDuplicateID):
		s.printf("User ID already exists. Please choose a different one.\n")
	case errors.Is(err, bank.ErrInvalidInput):
		s.printf("\n<<Invalid User ID or Password. Please try again.>>\n")
	default:
		return err
	}
	return nil
}

// login 為一般登入；帳號為 admin 時同樣進入管理員選單。
func (s *Session) login(ctx context.Context) error {
	id, err := s.prompt("Enter User ID: ")
	if err != nil {
		return err
	}
	pw, err := s.secret("Enter Password: ")
	if err != nil {
		return err
	}

	h, ok := s.authenticate(ctx, id, pw)
	if !ok {
		return nil
	}
	s.printf("Login successful!\n")
	if h.Kind() == bank.KindAdmin {
		return s.adminMenu(ctx)
	}
	return s.userMenu(ctx, h.ID())
}

func (s *Session) adminLogin(ctx context.Context) error {
	id, err := s.prompt("Enter Admin ID: ")
	if err != nil {
		return err
	}
	pw, err := s.secret("Enter Admin Password: ")
	if err != nil {
		return err
	}
	if id != bank.AdminID {
		s.log.Warn(ctx, "admin login with non-admin id", "account", id)
		s.printf("\n<<Invalid Admin ID. Please try again.>>\n")
		return nil
	}

	if _, ok := s.authenticate(ctx, id, pw); !ok {
		return nil
	}
	s.printf("Admin Login successful!\n")
	return s.adminMenu(ctx)
}

// authenticate 呼叫 Ledger.Login 並把失敗原因轉成提示訊息。
func (s *Session) authenticate(ctx context.Context, id, pw string) (bank.Holder, bool) {
	h, err := s.ledger.Login(ctx, id, pw)
	if err == nil {
		return h, true
	}
	if errors.Is(err, bank.ErrPersist) {
		defer s.saveWarning()
		if h != nil {
			return h, true
		}
	}

	var ae *bank.AttemptsError
	switch {
	case errors.As(err, &ae) && ae.Remaining > 0:
		s.printf("Invalid Password. Attempts remaining: %d\n", ae.Remaining)
	case errors.As(err, &ae):
		s.printf("Account locked due to multiple login failures.\n")
	case errors.Is(err, bank.ErrLocked):
		s.printf("Account is locked. Please contact customer support.\n")
	case errors.Is(err, bank.ErrUnknownID):
		s.printf("\n<<Invalid User ID. Please try again.>>\n")
	case errors.Is(err, bank.ErrWrongPassword):
		s.printf("Invalid Password.\n")
	default:
		s.log.Error(ctx, "login failed", "account", id, "error", err)
		s.printf("\n<<Login failed. Please try again later.>>\n")
	}
	return nil, false
}

// idle 判斷距離 since 是否已超過閒置時間；超過時輸出登出訊息。
func (s *Session) idle(ctx context.Context, since time.Time) bool {
	if s.now().Sub(since) < s.timeout {
		return false
	}
	s.log.Info(ctx, "session timed out", "timeout", s.timeout.String())
	s.printf("\n<<Time limit exceeded. Logout due to inactivity.>>\n")
	return true
}

const banner = "--------------------------------------------------------------------------------"
