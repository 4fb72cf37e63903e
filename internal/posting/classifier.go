package posting

import "fmt"

// Default chart of accounts codes touched by the posting rules. The chart
// itself is reference data owned elsewhere; these are the control accounts.
const (
	AccountCash           = "1000"
	AccountReceivable     = "1100"
	AccountInventory      = "1300"
	AccountWorkInProgress = "1350"
	AccountPayable        = "2100"
	AccountRevenue        = "4000"
)

// SubledgerEffect describes what an event does to the AR/AP subledgers.
type SubledgerEffect int

const (
	EffectNone SubledgerEffect = iota
	EffectCreateReceivable
	EffectApplyReceivable
	EffectCreatePayable
	EffectApplyPayable
)

// PostingRule maps an event type to the accounts it debits and credits and
// the subledger effect it triggers. Overridable sides may be re-pointed by
// payload fields (e.g. which revenue account an order posts to).
type PostingRule struct {
	DebitAccount      string
	CreditAccount     string
	Effect            SubledgerEffect
	DebitOverridable  bool
	CreditOverridable bool
}

// Classify resolves the posting rule for an event type. The switch is
// exhaustive over the closed event set; adding an event type without a rule
// here is a compile-side decision, not a silent runtime skip.
func Classify(eventType EventType) (PostingRule, error) {
	switch eventType {
	case EventOrderConfirmed:
		return PostingRule{
			DebitAccount:      AccountReceivable,
			CreditAccount:     AccountRevenue,
			Effect:            EffectCreateReceivable,
			CreditOverridable: true,
		}, nil
	case EventPaymentConfirmed:
		return PostingRule{
			DebitAccount:  AccountCash,
			CreditAccount: AccountReceivable,
			Effect:        EffectApplyReceivable,
		}, nil
	case EventGoodsReceived:
		return PostingRule{
			DebitAccount:  AccountInventory,
			CreditAccount: AccountPayable,
			Effect:        EffectCreatePayable,
		}, nil
	case EventSupplierPaid:
		return PostingRule{
			DebitAccount:  AccountPayable,
			CreditAccount: AccountCash,
			Effect:        EffectApplyPayable,
		}, nil
	case EventMaterialIssued:
		return PostingRule{
			DebitAccount:     AccountWorkInProgress,
			CreditAccount:    AccountInventory,
			Effect:           EffectNone,
			DebitOverridable: true,
		}, nil
	default:
		return PostingRule{}, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
}

// Resolve applies payload account overrides where the rule allows them.
func (r PostingRule) Resolve(payload EventPayload) PostingRule {
	if r.CreditOverridable && payload.RevenueAccount != "" {
		r.CreditAccount = payload.RevenueAccount
	}
	if r.DebitOverridable && payload.ExpenseAccount != "" {
		r.DebitAccount = payload.ExpenseAccount
	}
	return r
}

// CreatesItem reports whether the effect opens a new subledger item.
func (e SubledgerEffect) CreatesItem() bool {
	return e == EffectCreateReceivable || e == EffectCreatePayable
}

// AppliesItem reports whether the effect settles against an existing item.
func (e SubledgerEffect) AppliesItem() bool {
	return e == EffectApplyReceivable || e == EffectApplyPayable
}
