package midtrans

import (
	"crypto/sha512"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignature(t *testing.T) {
	fields := SignedFields{OrderId: "SUB-001", StatusCode: "200", GrossAmount: "1000.00"}
	want := fmt.Sprintf("%x", sha512.Sum512([]byte("SUB-001"+"200"+"1000.00"+"server-key")))

	assert.Equal(t, want, Signature(fields, "server-key"))
	assert.Len(t, Signature(fields, "server-key"), 128)
}

func TestVerifySignature(t *testing.T) {
	fields := SignedFields{OrderId: "SUB-001", StatusCode: "200", GrossAmount: "1000.00"}
	valid := Signature(fields, "server-key")

	tests := []struct {
		name    string
		fields  SignedFields
		key     string
		claimed string
		want    bool
	}{
		{name: "valid", fields: fields, key: "server-key", claimed: valid, want: true},
		{name: "valid upper case hex", fields: fields, key: "server-key", claimed: strings.ToUpper(valid), want: true},
		{name: "tampered amount", fields: SignedFields{OrderId: "SUB-001", StatusCode: "200", GrossAmount: "1.00"}, key: "server-key", claimed: valid, want: false},
		{name: "tampered status code", fields: SignedFields{OrderId: "SUB-001", StatusCode: "201", GrossAmount: "1000.00"}, key: "server-key", claimed: valid, want: false},
		{name: "wrong key", fields: fields, key: "other-key", claimed: valid, want: false},
		{name: "empty claim", fields: fields, key: "server-key", claimed: "", want: false},
		{name: "empty key", fields: fields, key: "", claimed: valid, want: false},
		{name: "truncated claim", fields: fields, key: "server-key", claimed: valid[:64], want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifySignature(tt.fields, tt.key, tt.claimed))
		})
	}
}
