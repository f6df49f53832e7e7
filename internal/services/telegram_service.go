package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// TelegramService handles sending operational notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to the specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// PaymentNotification contains payment data for the admin channel.
type PaymentNotification struct {
	OfferID         string
	PaymentIntentID string
	CustomerEmail   string
	AmountTotal     int64
	Currency        string
	Source          string
}

// FormatAmount renders integer minor units as a human price string.
func FormatAmount(minorUnits int64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%d.%02d %s", minorUnits/100, minorUnits%100, strings.ToUpper(currency))
}

// NotifyPaymentSuccess sends a payment-received note to the admin chat.
func (s *TelegramService) NotifyPaymentSuccess(payment PaymentNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	message := fmt.Sprintf(`<b>✅ PAYMENT RECEIVED</b>
<b>Offer:</b> %s
<b>Intent:</b> %s
<b>Customer:</b> %s
<b>Amount:</b> %s
<b>Source:</b> %s`,
		payment.OfferID,
		payment.PaymentIntentID,
		payment.CustomerEmail,
		FormatAmount(payment.AmountTotal, payment.Currency),
		payment.Source,
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}

// NotifyWebhookErrors alerts the admin chat about a webhook failure spike.
func (s *TelegramService) NotifyWebhookErrors(errored, stalePending int64, window time.Duration) error {
	if s.adminChatID == "" {
		return nil
	}

	message := fmt.Sprintf(`<b>⚠️ WEBHOOK PROCESSING DEGRADED</b>
<b>Errored logs (last %s):</b> %d
<b>Stale pending logs:</b> %d
Check the webhook ledger for details.`,
		window, errored, stalePending,
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}
