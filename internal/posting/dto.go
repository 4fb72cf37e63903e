package posting

import "time"

// PostEventRequest is the JSON body of POST /api/accounting/events.
type PostEventRequest struct {
	EventType      string  `json:"event_type" validate:"required"`
	SourceType     string  `json:"source_type" validate:"required,max=40"`
	SourceNo       string  `json:"source_no" validate:"required,max=60"`
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	CounterpartyID int64   `json:"counterparty_id" validate:"gte=0"`
	SourceDocID    int64   `json:"source_doc_id" validate:"gte=0"`
	DueDate        string  `json:"due_date,omitempty"`
	ProjectID      *int64  `json:"project_id,omitempty"`
	RevenueAccount string  `json:"revenue_account,omitempty" validate:"omitempty,len=4"`
	ExpenseAccount string  `json:"expense_account,omitempty" validate:"omitempty,len=4"`
	Description    string  `json:"description,omitempty" validate:"max=255"`
}

// ToInput converts the request to a posting input. The due date, when set,
// must be YYYY-MM-DD.
func (r PostEventRequest) ToInput() (PostInput, error) {
	var due time.Time
	if r.DueDate != "" {
		parsed, err := time.Parse("2006-01-02", r.DueDate)
		if err != nil {
			return PostInput{}, err
		}
		due = parsed
	}
	return PostInput{
		EventType:  EventType(r.EventType),
		SourceType: r.SourceType,
		SourceNo:   r.SourceNo,
		Payload: EventPayload{
			Amount:         r.Amount,
			CounterpartyID: r.CounterpartyID,
			SourceDocID:    r.SourceDocID,
			DueDate:        due,
			ProjectID:      r.ProjectID,
			RevenueAccount: r.RevenueAccount,
			ExpenseAccount: r.ExpenseAccount,
			Description:    r.Description,
		},
	}, nil
}
