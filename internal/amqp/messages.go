package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseCreatedMessage announces one newly persisted expense. Consumers
// fetch the full record themselves; the message carries only the id.
type ExpenseCreatedMessage struct {
	ExpenseID int64     `json:"expense_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseCreatedMessage(expenseID int64) *ExpenseCreatedMessage {
	return &ExpenseCreatedMessage{
		ExpenseID: expenseID,
		Timestamp: time.Now(),
	}
}

func (m *ExpenseCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseCreatedMessageFromJSON(data []byte) (*ExpenseCreatedMessage, error) {
	var msg ExpenseCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
