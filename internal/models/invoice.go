package models

import "time"

// Invoice statuses
const (
	InvoiceDraft = "draft"
	InvoiceSent  = "sent"
	InvoicePaid  = "paid"
)

// Invoice is a bill issued to a client
type Invoice struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	ClientID  string     `json:"client_id"`
	Number    string     `json:"number"`
	Items     []LineItem `json:"items"`
	Currency  string     `json:"currency,omitempty"`
	Status    string     `json:"status"`
	Notes     string     `json:"notes,omitempty"`
	IssuedAt  time.Time  `json:"issued_at"`
	DueAt     time.Time  `json:"due_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// LineItem is one billed entry
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// Amount returns quantity times unit price
func (li LineItem) Amount() float64 {
	return li.Quantity * li.UnitPrice
}

// Total sums all line item amounts
func (inv *Invoice) Total() float64 {
	var total float64
	for _, item := range inv.Items {
		total += item.Amount()
	}
	return total
}
