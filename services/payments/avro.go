package payments

const paymentStatusEventSchema = `{
	"namespace": "acquiring.payments",
	"type": "record",
	"name": "paymentStatus",
	"doc": "This message is sent when a payment moves to a new lifecycle status",
	"fields": [
		{ "name": "paymentId", "type": "string" },
		{ "name": "merchantKey", "type": "string" },
		{ "name": "orderId", "type": "string" },
		{ "name": "fromStatus", "type": "string" },
		{ "name": "toStatus", "type": "string" },
		{ "name": "actor", "type": "string" },
		{ "name": "amount", "type": "string" },
		{ "name": "currency", "type": "string" },
		{ "name": "errorCode", "type": "string", "default": "" },
		{ "name": "occurredAt", "type": "string" }
	]}`

// PaymentStatusEvent - kafka payment status event
type PaymentStatusEvent struct {
	PaymentID   string `json:"paymentId"`
	MerchantKey string `json:"merchantKey"`
	OrderID     string `json:"orderId"`
	FromStatus  string `json:"fromStatus"`
	ToStatus    string `json:"toStatus"`
	Actor       string `json:"actor"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	ErrorCode   string `json:"errorCode"`
	OccurredAt  string `json:"occurredAt"`
}
