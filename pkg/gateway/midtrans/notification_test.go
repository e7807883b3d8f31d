package midtrans

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotification(t *testing.T) {
	body := []byte(`{
		"transaction_id": "tx-1",
		"order_id": "SUB-001",
		"gross_amount": "1000.00",
		"payment_type": "bank_transfer",
		"transaction_status": "settlement",
		"status_code": "200",
		"transaction_time": "2026-10-18 10:00:00",
		"signature_key": "abc"
	}`)

	n, err := ParseNotification(body)
	require.NoError(t, err)
	assert.Equal(t, "SUB-001", n.OrderId)
	assert.Equal(t, StatusSettlement, n.Status())
	assert.Equal(t, FraudNone, n.Fraud())

	_, err = ParseNotification([]byte(`{"order_id": "SUB-001"}`))
	assert.True(t, errors.Is(err, ErrInvalidPayload))

	_, err = ParseNotification([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrInvalidPayload))
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"settlement", StatusSettlement},
		{"capture", StatusCapture},
		{"pending", StatusPending},
		{"deny", StatusDeny},
		{"cancel", StatusCancel},
		{"expire", StatusExpire},
		{"refund", StatusRefund},
		{" Settlement ", StatusSettlement},
		{"partial_refund", StatusUnknown},
		{"authorize", StatusUnknown},
		{"", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.raw))
		})
	}

	assert.Equal(t, "refund", StatusRefund.String())
	assert.Equal(t, "unknown", StatusUnknown.String())
}

func TestParseFraudStatus(t *testing.T) {
	assert.Equal(t, FraudNone, ParseFraudStatus(""))
	assert.Equal(t, FraudAccept, ParseFraudStatus("accept"))
	assert.Equal(t, FraudChallenge, ParseFraudStatus("challenge"))
	assert.Equal(t, FraudDeny, ParseFraudStatus("deny"))
	assert.Equal(t, FraudDeny, ParseFraudStatus("something-else"))
}

func TestParseTransactionTime(t *testing.T) {
	loc := time.FixedZone("WIB", 7*60*60)

	got, err := ParseTransactionTime("2026-10-18 17:00:00", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)))

	got, err = ParseTransactionTime("2026-10-18T10:00:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)))

	_, err = ParseTransactionTime("yesterday", loc)
	assert.True(t, errors.Is(err, ErrInvalidPayload))
}

func TestCheckFreshness(t *testing.T) {
	received := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		txTime  time.Time
		wantErr bool
	}{
		{name: "just now", txTime: received.Add(-time.Minute)},
		{name: "exactly 24h", txTime: received.Add(-24 * time.Hour)},
		{name: "23h", txTime: received.Add(-23 * time.Hour)},
		{name: "30h old", txTime: received.Add(-30 * time.Hour), wantErr: true},
		{name: "24h and a second", txTime: received.Add(-24*time.Hour - time.Second), wantErr: true},
		{name: "clock skew ahead", txTime: received.Add(time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFreshness(tt.txTime, received, DefaultMaxAge)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrStaleWebhook))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseGrossAmountCents(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "1000.00", want: 100000},
		{raw: "1000", want: 100000},
		{raw: "1000.5", want: 100050},
		{raw: "0.99", want: 99},
		{raw: ".50", want: 50},
		{raw: "150000.000", want: 15000000},
		{raw: "1.005", wantErr: true},
		{raw: "-10.00", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseGrossAmountCents(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatGrossAmount(t *testing.T) {
	assert.Equal(t, "1000.00", FormatGrossAmount(100000))
	assert.Equal(t, "0.05", FormatGrossAmount(5))
}

func TestIdempotencyKeys(t *testing.T) {
	assert.Equal(t, "SUB-001:settlement", IdempotencyKey("SUB-001", "Settlement"))
	assert.NotEqual(t, IdempotencyKey("SUB-001", "settlement"), IdempotencyKey("SUB-001", "refund"))

	a := UnverifiedKey([]byte(`{"order_id":"SUB-001"}`))
	b := UnverifiedKey([]byte(`{"order_id":"SUB-001"}`))
	assert.Equal(t, a, b)
	assert.Contains(t, a, "hash:")
	assert.NotEqual(t, a, UnverifiedKey([]byte(`{"order_id":"SUB-002"}`)))
}
