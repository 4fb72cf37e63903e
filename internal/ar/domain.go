package ar

import (
	"errors"
	"math"
	"time"
)

// ItemStatus enumerates open item lifecycle values.
type ItemStatus string

const (
	ItemStatusOpen    ItemStatus = "OPEN"
	ItemStatusPartial ItemStatus = "PARTIAL"
	ItemStatusClosed  ItemStatus = "CLOSED"
)

// OpenItem tracks an outstanding receivable against a customer.
// Created when revenue is recognised; the balance only ever moves down.
type OpenItem struct {
	ID             int64      `json:"id"`
	CustomerID     int64      `json:"customer_id"`
	SourceDocID    int64      `json:"source_doc_id"`
	OriginalAmount float64    `json:"original_amount"`
	BalanceAmount  float64    `json:"balance_amount"`
	DueAt          time.Time  `json:"due_at"`
	Status         ItemStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

var (
	// ErrItemNotFound indicates a missing open item.
	ErrItemNotFound = errors.New("ar: open item not found")
	// ErrOverpayment indicates an application exceeding the remaining balance.
	ErrOverpayment = errors.New("ar: amount exceeds remaining balance")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("ar: amount must be positive")
)

// NewOpenItem constructs an item with balance equal to the original amount.
func NewOpenItem(customerID, sourceDocID int64, amount float64, dueAt time.Time) (OpenItem, error) {
	if amount <= 0 {
		return OpenItem{}, ErrInvalidAmount
	}
	if customerID == 0 {
		return OpenItem{}, errors.New("ar: customer required")
	}
	if sourceDocID == 0 {
		return OpenItem{}, errors.New("ar: source document required")
	}
	return OpenItem{
		CustomerID:     customerID,
		SourceDocID:    sourceDocID,
		OriginalAmount: round2(amount),
		BalanceAmount:  round2(amount),
		DueAt:          dueAt,
		Status:         ItemStatusOpen,
	}, nil
}

// Apply reduces the balance by amount and recomputes the status.
// Overpayment is rejected outright; the item is left untouched on error.
func (i *OpenItem) Apply(amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	remaining := round2(i.BalanceAmount - amount)
	if remaining < 0 {
		return ErrOverpayment
	}
	i.BalanceAmount = remaining
	i.Status = statusFor(remaining, i.OriginalAmount)
	return nil
}

func statusFor(balance, original float64) ItemStatus {
	switch {
	case balance == 0:
		return ItemStatusClosed
	case balance == round2(original):
		return ItemStatusOpen
	default:
		return ItemStatusPartial
	}
}

// DaysOverdue reports how many full days the item is past due at asOf.
func (i OpenItem) DaysOverdue(asOf time.Time) int {
	days := int(asOf.Sub(i.DueAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// AgingBucket groups outstanding balances by days overdue.
type AgingBucket struct {
	Current   float64 `json:"current"`
	Bucket30  float64 `json:"bucket_30"`
	Bucket60  float64 `json:"bucket_60"`
	Bucket90  float64 `json:"bucket_90"`
	Bucket120 float64 `json:"bucket_120"`
}

// AgeItems buckets non-closed items by days overdue at asOf.
func AgeItems(items []OpenItem, asOf time.Time) AgingBucket {
	var bucket AgingBucket
	for _, item := range items {
		if item.Status == ItemStatusClosed {
			continue
		}
		days := int(asOf.Sub(item.DueAt).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current += item.BalanceAmount
		case days <= 30:
			bucket.Bucket30 += item.BalanceAmount
		case days <= 60:
			bucket.Bucket60 += item.BalanceAmount
		case days <= 90:
			bucket.Bucket90 += item.BalanceAmount
		default:
			bucket.Bucket120 += item.BalanceAmount
		}
	}
	return bucket
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
