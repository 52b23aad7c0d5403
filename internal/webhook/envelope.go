// ABOUTME: Inbound webhook envelope parsing and signature verification
// ABOUTME: A body either parses completely or produces a ParseError and no events

package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

// ErrParse matches every *ParseError.
var ErrParse = errors.New("webhook parse error")

// ParseError reports an inbound body that could not be parsed.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "webhook parse error: " + e.Reason + ": " + e.Err.Error()
	}
	return "webhook parse error: " + e.Reason
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Envelope is the body the remote API posts.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// ParseEnvelope decodes body. It must be a single JSON object; the event
// name is not checked here.
func ParseEnvelope(body []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &ParseError{Reason: "empty body"}
	}
	if trimmed[0] != '{' {
		return nil, &ParseError{Reason: "body is not a JSON object"}
	}
	if !json.Valid(trimmed) {
		return nil, &ParseError{Reason: "invalid JSON"}
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, &ParseError{Reason: "decoding envelope", Err: err}
	}
	return &env, nil
}

// Sign returns the signature header value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// verifySignature checks header against body. Without a secret every
// delivery is accepted; with one, an unsigned delivery is rejected.
func verifySignature(secret, header string, body []byte) bool {
	if secret == "" {
		return true
	}
	if header == "" {
		return false
	}
	got, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	gotMAC, err := hex.DecodeString(got)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(gotMAC, mac.Sum(nil))
}
