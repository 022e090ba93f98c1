package domain

// TransactionInit is what the payment gateway returns when a transaction is
// opened: the URL to redirect the customer to and the gateway's access code.
type TransactionInit struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// GatewayStatus is the gateway's authoritative view of one transaction.
// Amount is in minor units (kobo/pesewas), as delivered on the wire.
type GatewayStatus struct {
	Reference       string
	Status          string
	Amount          int64
	Currency        string
	PaidAt          string
	Channel         string
	GatewayResponse string
}
