package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func validPayload() WebhookPayload {
	var p WebhookPayload
	p.ExternalEventID = "evt-001"
	p.EventType = "call.completed"
	p.ExternalCallID = "call-001"
	p.Direction = "inbound"
	p.Outcome = "answered"
	p.FromNumber = "+14165551234"
	p.ToNumber = "+14165559999"
	return p
}

func TestPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WebhookPayload)
		wantErr bool
	}{
		{"valid", func(p *WebhookPayload) {}, false},
		{"missing event id", func(p *WebhookPayload) { p.ExternalEventID = "" }, true},
		{"missing event type", func(p *WebhookPayload) { p.EventType = "" }, true},
		{"missing call id", func(p *WebhookPayload) { p.ExternalCallID = "" }, true},
		{"bad direction", func(p *WebhookPayload) { p.Direction = "sideways" }, true},
		{"bad outcome", func(p *WebhookPayload) { p.Outcome = "exploded" }, true},
		{"empty outcome allowed", func(p *WebhookPayload) { p.Outcome = "" }, false},
		{"voicemail outcome", func(p *WebhookPayload) { p.Outcome = "voicemail" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("validation errors must wrap ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestPayloadUnmarshal(t *testing.T) {
	raw := []byte(`{
		"event_id": "evt-42",
		"event_type": "call.completed",
		"call_id": "call-42",
		"contact_id": "prov-7",
		"direction": "outbound",
		"outcome": "missed",
		"from_number": "+14165551234",
		"to_number": "(416) 555-9999",
		"duration_seconds": 0,
		"has_consent": true,
		"transcript": "left a message"
	}`)

	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if p.ExternalEventID != "evt-42" || p.ExternalCallID != "call-42" {
		t.Errorf("envelope fields not parsed: %+v", p)
	}
	if p.ContactID == nil || *p.ContactID != "prov-7" {
		t.Errorf("contact id not parsed: %v", p.ContactID)
	}
	if p.Transcript == nil || *p.Transcript != "left a message" {
		t.Errorf("transcript not parsed: %v", p.Transcript)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("payload should validate: %v", err)
	}
}

func TestHMACVerifier(t *testing.T) {
	secret := "test-signing-secret"
	v := NewHMACVerifier(secret)
	payload := []byte(`{"event_id":"evt-1"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	good := hex.EncodeToString(mac.Sum(nil))

	if !v.Verify(payload, good) {
		t.Error("valid signature rejected")
	}
	if v.Verify(payload, "deadbeef") {
		t.Error("bogus signature accepted")
	}
	if v.Verify(payload, "") {
		t.Error("empty signature accepted")
	}
	if v.Verify([]byte(`{"event_id":"evt-2"}`), good) {
		t.Error("signature accepted for different payload")
	}
}

// TestProperty_HMACVerifier_RoundTrip tests that a correctly computed
// signature verifies and a tampered payload does not.
func TestProperty_HMACVerifier_RoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		secret := rapid.StringMatching(`[a-zA-Z0-9]{8,32}`).Draw(rt, "secret")
		payload := []byte(rapid.StringMatching(`\{"k":"[a-z0-9]{1,40}"\}`).Draw(rt, "payload"))

		v := NewHMACVerifier(secret)

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		sig := hex.EncodeToString(mac.Sum(nil))

		if !v.Verify(payload, sig) {
			t.Fatalf("PROPERTY VIOLATION: genuine signature rejected")
		}

		tampered := append([]byte{}, payload...)
		tampered[len(tampered)-2] ^= 0x01
		if v.Verify(tampered, sig) {
			t.Fatalf("PROPERTY VIOLATION: tampered payload accepted")
		}
	})
}

func TestNoopVerifierAcceptsAnything(t *testing.T) {
	v := NoopVerifier{}
	if !v.Verify([]byte("anything"), "") {
		t.Error("noop verifier rejected input")
	}
}
