package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pablotenorio6/polymarket-bot/internal/bot"
	"github.com/pablotenorio6/polymarket-bot/internal/config"
	"github.com/pablotenorio6/polymarket-bot/internal/telegram"
	"github.com/pablotenorio6/polymarket-bot/internal/wallet"
)

const (
	version = "0.1.0"
	banner  = `
 ____ _____ ____   _   _ ____  ____   _____        ___   _
| __ )_   _/ ___| | | | |  _ \|  _ \ / _ \ \      / / \ | |
|  _ \ | || |     | | | | |_) | | | | | | \ \ /\ / /|  \| |
| |_) || || |___  | |_| |  __/| |_| | |_| |\ V  V / | |\  |
|____/ |_| \____|  \___/|_|   |____/ \___/  \_/\_/  |_| \_|

Momentum Trader v%s
Automated trading for 15-minute BTC up/down markets
`
)

func main() {
	log.SetFlags(log.Ltime | log.Lmsgprefix)
	log.SetPrefix("[trader] ")

	fmt.Printf(banner, version)
	fmt.Println(strings.Repeat("-", 60))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	printConfig(cfg)

	var w *wallet.Wallet
	if cfg.CanTrade() {
		log.Println("initializing wallet...")
		w, err = wallet.NewWalletFromHex(cfg.PrivateKey)
		if err != nil {
			log.Fatalf("failed to create wallet: %v", err)
		}
		log.Printf("wallet address: %s", w.AddressHex())
	} else {
		log.Println("no PRIVATE_KEY configured, running monitor-only")
	}

	log.Println("initializing telegram bot...")
	tg, err := telegram.NewBot(cfg.TelegramBotToken, cfg.TelegramChatID)
	if err != nil {
		log.Fatalf("failed to create telegram bot: %v", err)
	}

	trader := bot.New(cfg, w, tg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal: %v, initiating shutdown...", sig)
		cancel()
	}()

	if err := tg.NotifyStarted(cfg.CanTrade()); err != nil {
		log.Printf("warning: failed to send startup notification: %v", err)
	}

	log.Println("starting trading loop...")
	fmt.Println(strings.Repeat("-", 60))

	if err := trader.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("trading loop error: %v", err)
		tg.NotifyError(err)
	}

	log.Println("shutting down...")

	if err := tg.NotifyStopped(trader.OpenPositions()); err != nil {
		log.Printf("warning: failed to send shutdown notification: %v", err)
	}

	log.Println("shutdown complete")
	os.Exit(0)
}

func printConfig(cfg *config.Config) {
	mode := "LIVE"
	if !cfg.CanTrade() {
		mode = "MONITOR-ONLY"
	}

	telegramStatus := "disabled"
	if cfg.HasTelegram() {
		telegramStatus = "enabled"
	}

	stopLoss := "disabled"
	if cfg.EnableStopLoss {
		stopLoss = fmt.Sprintf("%.2f", cfg.StopLossPrice)
	}

	log.Printf("mode:            %s", mode)
	log.Printf("chain ID:        %d", cfg.PolygonChainID)
	log.Printf("trigger price:   %.2f", cfg.TriggerPrice)
	log.Printf("entry price:     %.2f", cfg.EntryPrice)
	log.Printf("stop loss:       %s", stopLoss)
	log.Printf("max position:    $%.2f", cfg.MaxPositionSize)
	log.Printf("poll interval:   %s", cfg.PollInterval)
	log.Printf("max positions:   %d", cfg.MaxConcurrentPositions)
	log.Printf("telegram:        %s", telegramStatus)
}
