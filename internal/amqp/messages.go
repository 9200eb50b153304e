package amqp

import (
	"encoding/json"
	"time"
)

// TransactionAddedMessage announces a newly ingested transaction. It carries
// only the external id; consumers fetch the full row from the database.
type TransactionAddedMessage struct {
	TransactionID string    `json:"transaction_id"`
	MerchantName  string    `json:"merchant_name"`
	AmountCents   int64     `json:"amount_cents"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionAddedMessage(id, merchant string, amountCents int64) *TransactionAddedMessage {
	return &TransactionAddedMessage{
		TransactionID: id,
		MerchantName:  merchant,
		AmountCents:   amountCents,
		Timestamp:     time.Now(),
	}
}

func (m *TransactionAddedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionAddedMessageFromJSON(data []byte) (*TransactionAddedMessage, error) {
	var msg TransactionAddedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// PeriodClosedMessage announces a period rollover. The archive worker fetches
// the closed period and its snapshots by id.
type PeriodClosedMessage struct {
	PeriodID  string    `json:"period_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPeriodClosedMessage(periodID string) *PeriodClosedMessage {
	return &PeriodClosedMessage{PeriodID: periodID, Timestamp: time.Now()}
}

func (m *PeriodClosedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PeriodClosedMessageFromJSON(data []byte) (*PeriodClosedMessage, error) {
	var msg PeriodClosedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
