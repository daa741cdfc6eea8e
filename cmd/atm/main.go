// cmd/atm/main.go

// ATM 文字介面程式進入點。
// 此檔案負責讀取設定、初始化模組（logging, storage, bank, atm），
// 啟動時載入帳本、執行期間定期自動保存，並在離開或收到 SIGINT/SIGTERM 時保存。

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"golang.org/x/term"

	"atm/internal/atm"
	"atm/internal/bank"
	"atm/internal/config"
	"atm/internal/logging"
	"atm/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "atm:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx := context.Background()
	for _, w := range cfg.Warnings {
		log.Warn(ctx, "config", "warning", w)
	}

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	// 初始化銀行核心模組
	b := bank.NewBank(
		bank.WithBackend(backend),
		bank.WithLogger(log),
		bank.WithAdminPassword(cfg.AdminPassword),
		bank.WithAdminLockout(cfg.AdminLockout),
	)

	// 載入失敗時直接結束，避免以空帳本覆寫既有資料
	if err := b.Load(ctx); err != nil {
		return err
	}

	// 定期自動保存；排程格式錯誤只記錄警告，不影響使用
	if cfg.Autosave != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.Autosave, func() {
			if err := b.Save(ctx); err == nil {
				log.Debug(ctx, "autosave done")
			}
		}); err != nil {
			log.Warn(ctx, "autosave disabled", "schedule", cfg.Autosave, "error", err)
		} else {
			c.Start()
			defer c.Stop()
		}
	}

	// 監聽 SIGINT/SIGTERM，結束前保存狀態
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Info(ctx, "signal received, saving", "signal", sig.String())
		code := 0
		if err := b.Save(ctx); err != nil {
			code = 1
		}
		_ = log.Sync()
		os.Exit(code)
	}()

	opts := []atm.Option{
		atm.WithLogger(log),
		atm.WithTimeout(cfg.SessionTimeout),
	}
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		opts = append(opts, atm.WithTerminal(fd))
	}

	s := atm.NewSession(b, os.Stdin, os.Stdout, opts...)
	runErr := s.Run(ctx)
	if err := b.Save(ctx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// openBackend 依設定選擇 JSON 檔或 SQLite；回傳的 close 函式必定非 nil。
func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	default:
		return storage.NewJSONFile(cfg.DataFile), func() {}, nil
	}
}
