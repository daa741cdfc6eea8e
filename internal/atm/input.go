// internal/atm/input.go
//
// 輸入輸出輔助：選項、一般文字、密碼。

package atm

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

// readPassword 為 term.ReadPassword 的測試替身接點。
var readPassword = term.ReadPassword

func (s *Session) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

// readLine 讀取一行並去掉結尾換行；EOF 前若已有內容則回傳該內容。
func (s *Session) readLine() (string, error) {
	line, err := s.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// prompt 輸出提示並讀取一行。前後空白保留，交由 Ledger 檢核。
func (s *Session) prompt(label string) (string, error) {
	s.printf("%s", label)
	return s.readLine()
}

// choice 讀取選單選項，忽略前後空白。
func (s *Session) choice() (string, error) {
	line, err := s.prompt("\n=> Enter your choice: ")
	return strings.TrimSpace(line), err
}

// secret 讀取密碼；有終端機時不回顯，否則與一般輸入相同。
func (s *Session) secret(label string) (string, error) {
	if s.fd < 0 {
		return s.prompt(label)
	}
	s.printf("%s", label)
	pw, err := readPassword(s.fd)
	s.printf("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func (s *Session) invalidChoice() {
	s.printf("\n<<Invalid choice. Please try again.>>\n")
}

func (s *Session) saveWarning() {
	s.printf("<<Warning: changes could not be saved and may be lost on exit.>>\n")
}
