// Package email contiene el controller del endpoint de envío.
package email

// Controllers agrupa los controllers del dominio email.
type Controllers struct {
	Send *SendController
}

// NewControllers crea el agregador de controllers email.
func NewControllers(d Dispatcher) *Controllers {
	return &Controllers{
		Send: NewSendController(d),
	}
}
