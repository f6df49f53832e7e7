package services

// Registry bundles the long-lived services shared between the HTTP layer and
// the background loops.
type Registry struct {
	Sessions   *CheckoutService
	Orders     *OrderService
	WebhookLog *WebhookLogService
	Telegram   *TelegramService
}
