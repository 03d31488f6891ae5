package service

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHMACSignatureService_Sign(t *testing.T) {
	svc := NewHMACSignatureService()
	body := []byte(`{"event":"charge.success","data":{"id":302961}}`)

	mac := hmac.New(sha512.New, []byte("whsec"))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, svc.Sign("whsec", body))
	assert.Len(t, svc.Sign("whsec", body), 128)
}

func TestHMACSignatureService_Verify(t *testing.T) {
	svc := NewHMACSignatureService()
	body := []byte(`{"event":"transfer.success"}`)
	sig := svc.Sign("whsec", body)

	tests := []struct {
		name   string
		secret string
		body   []byte
		sig    string
		want   bool
	}{
		{"valid", "whsec", body, sig, true},
		{"uppercase hex accepted", "whsec", body, upper(sig), true},
		{"wrong secret", "other", body, sig, false},
		{"tampered body", "whsec", []byte(`{"event":"transfer.failed"}`), sig, false},
		{"missing signature", "whsec", body, "", false},
		{"unconfigured secret", "", body, svc.Sign("", body), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.Verify(tt.secret, tt.body, tt.sig))
		})
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 32
		}
	}
	return string(b)
}
