// internal/atm/menu.go
//
// 登入後的兩種選單：一般使用者（1~7）與管理員（1~3）。
// 讀到選項時先檢查停留在選單的時間，執行完操作後再檢查一次，超時即登出回到主選單。

package atm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"atm/internal/bank"
)

func (s *Session) userMenu(ctx context.Context, id string) error {
	s.log.Info(ctx, "user menu entered", "account", id)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.printf("\n(1) Check Balance\n(2) Deposit\n(3) Withdraw\n(4) Change Password\n" +
			"(5) Transaction History\n(6) Add Tag to Last Transaction\n(7) Logout\n")
		shown := s.now()
		choice, err := s.choice()
		if err != nil {
			return err
		}
		if s.idle(ctx, shown) {
			return nil
		}

		acted := s.now()
		switch choice {
		case "1":
			err = s.showBalance(id)
		case "2":
			err = s.deposit(ctx, id)
		case "3":
			err = s.withdraw(ctx, id)
		case "4":
			err = s.changePassword(ctx, id)
		case "5":
			err = s.showHistory(id)
		case "6":
			err = s.tag(ctx, id)
		case "7":
			s.log.Info(ctx, "logged out", "account", id)
			s.printf("\n<<Logout successful!>>\n")
			return nil
		default:
			s.invalidChoice()
		}
		if err != nil {
			return err
		}
		if s.idle(ctx, acted) {
			return nil
		}
	}
}

func (s *Session) adminMenu(ctx context.Context) error {
	s.log.Info(ctx, "admin menu entered")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.printf("\n------Admin Menu------\n")
		s.printf("\n(1) Total Balance\n(2) Notify Low Balance\n(3) Logout\n")
		shown := s.now()
		choice, err := s.choice()
		if err != nil {
			return err
		}
		if s.idle(ctx, shown) {
			return nil
		}

		acted := s.now()
		switch choice {
		case "1":
			s.printf("Total Balance: $%d\n", s.ledger.TotalBalance())
		case "2":
			if n, ok := s.ledger.LowBalanceNotice(); ok {
				s.printf("Notification: %s\n", n.Message)
			} else {
				s.printf("No notifications.\n")
			}
		case "3":
			s.log.Info(ctx, "admin logged out")
			s.printf("\n<<Admin Logout successful!>>\n")
			return nil
		default:
			s.invalidChoice()
		}
		if s.idle(ctx, acted) {
			return nil
		}
	}
}

func (s *Session) showBalance(id string) error {
	bal, err := s.ledger.Balance(id)
	if err != nil {
		return err
	}
	s.printf("Your balance: $%d\n", bal)
	return nil
}

// denominations 讀取並解析面額輸入；格式錯誤時輸出提示並回傳 ok=false。
func (s *Session) denominations() (bank.Denominations, bool, error) {
	line, err := s.prompt(`Enter denominations (e.g., {"100": 2, "200": 5}): `)
	if err != nil {
		return nil, false, err
	}
	d, err := bank.ParseDenominationsJSON([]byte(line))
	if err != nil {
		s.printf("\n<<Invalid denominations. Please try again.>>\n")
		return nil, false, nil
	}
	return d, true, nil
}

func (s *Session) deposit(ctx context.Context, id string) error {
	d, ok, err := s.denominations()
	if err != nil || !ok {
		return err
	}

	_, err = s.ledger.Deposit(ctx, id, d)
	switch {
	case err == nil:
		s.printf("Deposit successful!\n")
	case errors.Is(err, bank.ErrPersist):
		s.printf("Deposit successful!\n")
		s.saveWarning()
	case errors.Is(err, bank.ErrDepositLimit):
		s.printf("Exceeded maximum deposit limit.\n")
	case errors.Is(err, bank.ErrBadDenomination), errors.Is(err, bank.ErrBadAmount):
		s.printf("\n<<Invalid denominations. Please try again.>>\n")
	default:
		return err
	}
	return nil
}

func (s *Session) withdraw(ctx context.Context, id string) error {
	d, ok, err := s.denominations()
	if err != nil || !ok {
		return err
	}

	_, err = s.ledger.Withdraw(ctx, id, d)
	switch {
	case err == nil:
		s.printf("Withdrawal successful!\n")
	case errors.Is(err, bank.ErrPersist):
		s.printf("Withdrawal successful!\n")
		s.saveWarning()
	case errors.Is(err, bank.ErrWithdrawLimit), errors.Is(err, bank.ErrInsufficient):
		s.printf("Invalid withdrawal amount or insufficient funds.\n")
		s.printf("\n<<Transaction failed!>>\n")
	case errors.Is(err, bank.ErrBadDenomination), errors.Is(err, bank.ErrBadAmount):
		s.printf("\n<<Invalid denominations. Please try again.>>\n")
	default:
		return err
	}
	return nil
}

func (s *Session) changePassword(ctx context.Context, id string) error {
	current, err := s.secret("Enter current password: ")
	if err != nil {
		return err
	}
	next, err := s.secret("Enter new password: ")
	if err != nil {
		return err
	}

	err = s.ledger.ChangePassword(ctx, id, current, next)
	switch {
	case err == nil:
		s.printf("Credentials changed successfully for user %s!\n", id)
	case errors.Is(err, bank.ErrPersist):
		s.printf("Credentials changed successfully for user %s!\n", id)
		s.saveWarning()
	case errors.Is(err, bank.ErrWrongPassword):
		s.printf("Invalid current password. Unable to change credentials.\n")
	case errors.Is(err, bank.ErrInvalidInput):
		s.printf("\n<<Invalid new password. Unable to change credentials.>>\n")
	case errors.Is(err, bank.ErrUnknownID):
		s.printf("User not found. Unable to change credentials.\n")
	default:
		return err
	}
	return nil
}

func (s *Session) showHistory(id string) error {
	records, err := s.ledger.History(id)
	if err != nil {
		return err
	}
	s.printf("\nTransaction History:\n")
	if len(records) == 0 {
		s.printf("No transactions yet.\n")
		return nil
	}
	for _, r := range records {
		s.printf("%s\n", formatRecord(r))
	}
	return nil
}

// formatRecord 依面額由小到大附上明細，例如 "Deposited $700 on ... (100 x 2, 500 x 1)"。
func formatRecord(r bank.Record) string {
	if len(r.Denominations) == 0 {
		return r.Transaction
	}
	faces := make([]int, 0, len(r.Denominations))
	for f := range r.Denominations {
		faces = append(faces, f)
	}
	sort.Ints(faces)

	parts := make([]string, len(faces))
	for i, f := range faces {
		parts[i] = fmt.Sprintf("%d x %d", f, r.Denominations[f])
	}
	return fmt.Sprintf("%s (%s)", r.Transaction, strings.Join(parts, ", "))
}

func (s *Session) tag(ctx context.Context, id string) error {
	tag, err := s.prompt("Enter tag for the last transaction: ")
	if err != nil {
		return err
	}

	err = s.ledger.TagLastTransaction(ctx, id, tag)
	switch {
	case err == nil:
		s.printf("Tag added to the last transaction.\n")
	case errors.Is(err, bank.ErrPersist):
		s.printf("Tag added to the last transaction.\n")
		s.saveWarning()
	case errors.Is(err, bank.ErrEmptyHistory):
		s.printf("No transactions available to add a tag.\n")
	default:
		return err
	}
	return nil
}
