package models

// ProcessorRefund is the processor's refund object as returned by the
// refunds API.
type ProcessorRefund struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Charge        string `json:"charge"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason"`
	Status        string `json:"status"`
}

// ProcessorCharge is a charge looked up during event handling, used to
// resolve the payment intent when the event omits it.
type ProcessorCharge struct {
	ID             string `json:"id"`
	PaymentIntent  string `json:"payment_intent"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	Refunded       bool   `json:"refunded"`
}

// ProcessorError is the error envelope the processor returns on non-2xx
// responses.
type ProcessorError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
