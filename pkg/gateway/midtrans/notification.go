package midtrans

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidPayload = errors.New("invalid notification payload")
	ErrStaleWebhook   = errors.New("notification is older than the freshness window")
)

// TransactionTimeLayout is the layout Midtrans uses for transaction_time.
const TransactionTimeLayout = "2006-01-02 15:04:05"

// DefaultMaxAge bounds the replay window of a notification.
const DefaultMaxAge = 24 * time.Hour

// Notification is the HTTP notification body posted by Midtrans.
type Notification struct {
	TransactionId     string `json:"transaction_id"`
	OrderId           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	Currency          string `json:"currency"`
	PaymentType       string `json:"payment_type"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	TransactionTime   string `json:"transaction_time"`
	SignatureKey      string `json:"signature_key"`
}

// ParseNotification decodes the body and checks the fields needed to verify
// and route it.
func ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	missing := make([]string, 0)
	if n.OrderId == "" {
		missing = append(missing, "order_id")
	}
	if n.StatusCode == "" {
		missing = append(missing, "status_code")
	}
	if n.GrossAmount == "" {
		missing = append(missing, "gross_amount")
	}
	if n.TransactionStatus == "" {
		missing = append(missing, "transaction_status")
	}
	if n.TransactionTime == "" {
		missing = append(missing, "transaction_time")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidPayload, strings.Join(missing, ", "))
	}
	return &n, nil
}

// Status is the closed set of transaction statuses this service understands.
type Status int

const (
	StatusUnknown Status = iota
	StatusSettlement
	StatusCapture
	StatusPending
	StatusDeny
	StatusCancel
	StatusExpire
	StatusRefund
)

var statusNames = map[string]Status{
	"settlement": StatusSettlement,
	"capture":    StatusCapture,
	"pending":    StatusPending,
	"deny":       StatusDeny,
	"cancel":     StatusCancel,
	"expire":     StatusExpire,
	"refund":     StatusRefund,
}

func ParseStatus(raw string) Status {
	if s, ok := statusNames[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusUnknown
}

func (s Status) String() string {
	for name, v := range statusNames {
		if v == s {
			return name
		}
	}
	return "unknown"
}

type FraudStatus int

const (
	FraudNone FraudStatus = iota
	FraudAccept
	FraudChallenge
	FraudDeny
)

func ParseFraudStatus(raw string) FraudStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return FraudNone
	case "accept":
		return FraudAccept
	case "challenge":
		return FraudChallenge
	default:
		// anything we cannot read as accepted is treated as denied
		return FraudDeny
	}
}

func (n *Notification) Status() Status {
	return ParseStatus(n.TransactionStatus)
}

func (n *Notification) Fraud() FraudStatus {
	return ParseFraudStatus(n.FraudStatus)
}

// Location returns the gateway time zone, falling back to a fixed UTC+7
// when the zone database is not available.
func Location(name string) *time.Location {
	if name == "" {
		name = "Asia/Jakarta"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

// ParseTransactionTime reads transaction_time in the gateway zone. RFC 3339
// values carry their own offset and are accepted as well.
func ParseTransactionTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation(TransactionTimeLayout, raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: transaction_time %q", ErrInvalidPayload, raw)
}

// CheckFreshness rejects notifications whose transaction time is more than
// maxAge before receipt.
func CheckFreshness(transactionTime, receivedAt time.Time, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if receivedAt.Sub(transactionTime) > maxAge {
		return fmt.Errorf("%w: transaction_time %s, received %s",
			ErrStaleWebhook, transactionTime.Format(time.RFC3339), receivedAt.Format(time.RFC3339))
	}
	return nil
}

// ParseGrossAmountCents converts a decimal amount string such as "100000.00"
// into minor units without going through floating point.
func ParseGrossAmountCents(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "-") || strings.HasPrefix(raw, "+") {
		return 0, fmt.Errorf("%w: gross_amount %q", ErrInvalidPayload, raw)
	}

	whole, frac, _ := strings.Cut(raw, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		if strings.Trim(frac[2:], "0") != "" {
			return 0, fmt.Errorf("%w: gross_amount %q has sub-cent precision", ErrInvalidPayload, raw)
		}
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}

	if !isDigits(whole) || !isDigits(frac) {
		return 0, fmt.Errorf("%w: gross_amount %q", ErrInvalidPayload, raw)
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: gross_amount %q", ErrInvalidPayload, raw)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: gross_amount %q", ErrInvalidPayload, raw)
	}
	return units*100 + cents, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatGrossAmount renders minor units the way the gateway echoes gross_amount.
func FormatGrossAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// IdempotencyKey identifies one gateway event: redeliveries of the same
// order and status collapse onto it, a later refund of that order does not.
func IdempotencyKey(orderId, transactionStatus string) string {
	return orderId + ":" + strings.ToLower(strings.TrimSpace(transactionStatus))
}

// UnverifiedKey is the audit key of a payload whose signature did not check
// out. It never collides with an IdempotencyKey, so a forged delivery cannot
// occupy the slot of the genuine one.
func UnverifiedKey(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "hash:" + hex.EncodeToString(sum[:])
}
