package telegram

import (
	"fmt"
	"log"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot pushes trade events to a Telegram chat.
type Bot struct {
	api      *tgbotapi.BotAPI
	chatID   int64
	disabled bool
}

// NewBot creates a new Telegram bot instance.
// If token is empty, returns a no-op bot that logs messages instead of sending.
func NewBot(token, chatID string) (*Bot, error) {
	if token == "" {
		log.Println("[telegram] no token provided, running in disabled mode (logging only)")
		return &Bot{disabled: true}, nil
	}

	parsedChatID, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID %q: %w", chatID, err)
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	log.Printf("[telegram] authorized as @%s", api.Self.UserName)

	return &Bot{
		api:    api,
		chatID: parsedChatID,
	}, nil
}

// Notify sends a plain text message without blocking the caller; the
// trading loop cannot wait on the Telegram API.
func (b *Bot) Notify(text string) {
	go func() {
		if err := b.SendMessage(text); err != nil {
			log.Printf("[telegram] notify failed: %v", err)
		}
	}()
}

// SendMessage sends a plain text message.
func (b *Bot) SendMessage(text string) error {
	return b.send(text, false)
}

// SendAlert sends a formatted alert with bold title.
func (b *Bot) SendAlert(title, message string) error {
	formatted := fmt.Sprintf("*%s*\n\n%s", escapeMarkdown(title), message)
	return b.send(formatted, true)
}

// NotifyStarted sends a notification that the trader has started.
// trading=false means monitor-only mode (no signing key configured).
func (b *Bot) NotifyStarted(trading bool) error {
	mode := "LIVE"
	if !trading {
		mode = "MONITOR-ONLY"
	}
	return b.SendAlert("Trader Started", fmt.Sprintf("BTC up/down trader is running in `%s` mode", mode))
}

// NotifyStopped sends a notification that the trader has stopped.
// openPositions lists positions needing manual attention.
func (b *Bot) NotifyStopped(openPositions []string) error {
	body := "BTC up/down trader has been shut down"
	if len(openPositions) > 0 {
		body += fmt.Sprintf("\n\nOpen positions needing attention: `%d`", len(openPositions))
		for _, p := range openPositions {
			body += fmt.Sprintf("\n- `%s`", p)
		}
	}
	return b.SendAlert("Trader Stopped", body)
}

// NotifyMarketLocked sends a notification when a new market is locked.
func (b *Bot) NotifyMarketLocked(question string, endTime time.Time) error {
	timeUntilEnd := time.Until(endTime)
	return b.SendAlert("Market Locked",
		fmt.Sprintf("Market: `%s`\nEnds: `%s`\nTime until end: `%s`",
			question,
			endTime.Format(time.RFC3339),
			formatDuration(timeUntilEnd),
		),
	)
}

// NotifyError sends an error notification.
func (b *Bot) NotifyError(err error) error {
	return b.SendAlert("Error", fmt.Sprintf("`%s`", err.Error()))
}

// send handles the actual message sending with graceful error handling.
func (b *Bot) send(text string, useMarkdown bool) error {
	if b.disabled {
		log.Printf("[telegram] (disabled) %s", text)
		return nil
	}

	msg := tgbotapi.NewMessage(b.chatID, text)
	if useMarkdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}

	_, err := b.api.Send(msg)
	if err != nil {
		log.Printf("[telegram] failed to send message: %v", err)
		return fmt.Errorf("telegram send failed: %w", err)
	}

	return nil
}

// escapeMarkdown escapes special Markdown characters in text.
func escapeMarkdown(text string) string {
	replacer := []string{
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"(", "\\(",
		")", "\\)",
		"~", "\\~",
		"`", "\\`",
		">", "\\>",
		"#", "\\#",
		"+", "\\+",
		"-", "\\-",
		"=", "\\=",
		"|", "\\|",
		"{", "\\{",
		"}", "\\}",
		".", "\\.",
		"!", "\\!",
	}

	result := text
	for i := 0; i < len(replacer); i += 2 {
		result = replaceAll(result, replacer[i], replacer[i+1])
	}
	return result
}

// replaceAll replaces all occurrences of old with new in s.
func replaceAll(s, old, new string) string {
	var result []byte
	for i := 0; i < len(s); i++ {
		if i+len(old) <= len(s) && s[i:i+len(old)] == old {
			result = append(result, new...)
			i += len(old) - 1
		} else {
			result = append(result, s[i])
		}
	}
	return string(result)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "ended"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
