package webhooks

import (
	"testing"
)

func TestSign(t *testing.T) {
	secret := "secret"
	payload := []byte("payload")

	// Calculated using: echo -n "payload" | openssl dgst -sha256 -hmac "secret"
	expected := "b82fcb791acec57859b989b430a826488ce2e479fdf92326bd0a2e8375a42ba4"

	got := Sign(secret, payload)

	if got != expected {
		t.Errorf("Sign() = %v, want %v", got, expected)
	}
	if SignatureValue(secret, payload) != "sha256="+expected {
		t.Errorf("SignatureValue() = %v", SignatureValue(secret, payload))
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event_type":"backup_failed","event_id":"evt_1"}`)
	header := SignatureValue("whsec_1", body)

	tests := []struct {
		name   string
		secret string
		body   []byte
		header string
		want   bool
	}{
		{"round trip", "whsec_1", body, header, true},
		{"wrong secret", "whsec_2", body, header, false},
		{"mutated body", "whsec_1", append([]byte{' '}, body...), header, false},
		{"missing prefix", "whsec_1", body, Sign("whsec_1", body), false},
		{"not hex", "whsec_1", body, "sha256=zz", false},
		{"empty header", "whsec_1", body, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, tt.body, tt.header); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}
