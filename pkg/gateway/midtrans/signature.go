package midtrans

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// SignedFields are the notification fields covered by signature_key.
type SignedFields struct {
	OrderId     string
	StatusCode  string
	GrossAmount string
}

func (n *Notification) SignedFields() SignedFields {
	return SignedFields{
		OrderId:     n.OrderId,
		StatusCode:  n.StatusCode,
		GrossAmount: n.GrossAmount,
	}
}

// Signature = hex(SHA-512(order_id + status_code + gross_amount + server_key))
func Signature(fields SignedFields, serverKey string) string {
	sum := sha512.Sum512([]byte(fields.OrderId + fields.StatusCode + fields.GrossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature compares the claimed signature in constant time.
func VerifySignature(fields SignedFields, serverKey, claimed string) bool {
	if serverKey == "" || claimed == "" {
		return false
	}
	expected := Signature(fields, serverKey)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(claimed))))
}
