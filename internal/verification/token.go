package verification

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"strings"
	"time"
)

const (
	payloadVersion = "v1"
	// MaxPayloadLen bounds the encoded payload so it fits an interactive
	// button id on the messaging channel.
	MaxPayloadLen = 256
)

var b64 = base64.RawURLEncoding

// Payload is the self-describing content carried by a confirmation button.
// It holds the plaintext secret, never its hash.
type Payload struct {
	Secret    string `json:"s"`
	Phone     string `json:"p"`
	IsNewUser bool   `json:"n"`
	IssuedAt  int64  `json:"i"`
	ExpiresAt int64  `json:"e"`
	SessionID string `json:"sid"`
}

// Expiry returns the payload's expiry as a time.
func (p Payload) Expiry() time.Time {
	return time.Unix(p.ExpiresAt, 0)
}

func (p Payload) complete() bool {
	return p.Secret != "" && p.Phone != "" && p.SessionID != "" && p.IssuedAt > 0 && p.ExpiresAt > p.IssuedAt
}

// Encode serializes a payload as "v1.<base64url json>.<base64url crc32>".
// The checksum only detects corruption; the secret's hash match in the store
// is what authenticates the payload.
func Encode(p Payload) (string, error) {
	if !p.complete() {
		return "", fmt.Errorf("encode payload: %w", ErrMalformedPayload)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	encoded := payloadVersion + "." + b64.EncodeToString(body) + "." + b64.EncodeToString(checksum(body))
	if len(encoded) > MaxPayloadLen {
		return "", fmt.Errorf("encode payload: %d bytes exceeds %d", len(encoded), MaxPayloadLen)
	}
	return encoded, nil
}

// Decode parses an encoded payload. It fails with ErrMalformedPayload on any
// structural problem and with ErrPayloadExpired once ExpiresAt <= now.
func Decode(encoded string, now time.Time) (Payload, error) {
	if encoded == "" || len(encoded) > MaxPayloadLen {
		return Payload{}, ErrMalformedPayload
	}
	parts := strings.Split(encoded, ".")
	if len(parts) != 3 || parts[0] != payloadVersion {
		return Payload{}, ErrMalformedPayload
	}
	body, err := b64.DecodeString(parts[1])
	if err != nil {
		return Payload{}, ErrMalformedPayload
	}
	sum, err := b64.DecodeString(parts[2])
	if err != nil || string(sum) != string(checksum(body)) {
		return Payload{}, ErrMalformedPayload
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Payload{}, ErrMalformedPayload
	}
	if !p.complete() {
		return Payload{}, ErrMalformedPayload
	}
	if p.ExpiresAt <= now.Unix() {
		return Payload{}, ErrPayloadExpired
	}
	return p, nil
}

func checksum(body []byte) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, crc32.ChecksumIEEE(body))
	return out
}
