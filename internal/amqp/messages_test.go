package amqp

import (
	"testing"
	"time"
)

func TestTransactionAddedMessageJSON(t *testing.T) {
	msg := NewTransactionAddedMessage("tx_abc123", "Tesco Stores 2204", 1250)
	if msg.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	got, err := TransactionAddedMessageFromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if got.TransactionID != "tx_abc123" || got.MerchantName != "Tesco Stores 2204" || got.AmountCents != 1250 {
		t.Errorf("round trip = %+v", got)
	}
	if !got.Timestamp.Truncate(time.Second).Equal(msg.Timestamp.Truncate(time.Second)) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, msg.Timestamp)
	}
}

func TestPeriodClosedMessageInvalidJSON(t *testing.T) {
	if _, err := PeriodClosedMessageFromJSON([]byte("{not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
