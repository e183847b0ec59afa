package events

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Payload encodings.
const (
	EncodingUTF8   = "utf-8"
	EncodingBase64 = "base64"
)

// EventPayload carries the event's data plus enough framing (content type,
// encoding, size, checksum) for a handler to interpret and verify it.
type EventPayload struct {
	// Data is the structured payload value. For text payloads it is a
	// string; for binary payloads it is the base64-encoded string.
	Data any `json:"data"`

	ContentType string `json:"content_type"`
	Encoding    string `json:"encoding"`
	SizeBytes   int    `json:"size_bytes"`

	// Checksum is an md5 hex digest of the underlying bytes. Absent means
	// integrity is untracked.
	Checksum string `json:"checksum,omitempty"`
}

// JSONPayload creates an application/json payload from a structured value.
func JSONPayload(data any) EventPayload {
	encoded, err := json.Marshal(data)
	if err != nil {
		encoded = nil
	}
	return EventPayload{
		Data:        data,
		ContentType: "application/json",
		Encoding:    EncodingUTF8,
		SizeBytes:   len(encoded),
	}
}

// TextPayload creates a text/plain payload with an integrity checksum.
func TextPayload(text string) EventPayload {
	return EventPayload{
		Data:        text,
		ContentType: "text/plain",
		Encoding:    EncodingUTF8,
		SizeBytes:   len(text),
		Checksum:    fmt.Sprintf("%x", md5.Sum([]byte(text))),
	}
}

// BinaryPayload creates a base64-encoded payload with an integrity checksum
// computed over the raw bytes.
func BinaryPayload(data []byte, contentType string) EventPayload {
	return EventPayload{
		Data:        base64.StdEncoding.EncodeToString(data),
		ContentType: contentType,
		Encoding:    EncodingBase64,
		SizeBytes:   len(data),
		Checksum:    fmt.Sprintf("%x", md5.Sum(data)),
	}
}

// AsString returns the payload data when it is a string.
func (p EventPayload) AsString() (string, bool) {
	s, ok := p.Data.(string)
	return s, ok
}

// AsBytes returns the raw payload bytes, decoding base64 payloads.
func (p EventPayload) AsBytes() ([]byte, error) {
	s, ok := p.AsString()
	if !ok {
		return nil, fmt.Errorf("payload data is not a string")
	}
	if p.Encoding == EncodingBase64 {
		return base64.StdEncoding.DecodeString(s)
	}
	return []byte(s), nil
}

// AsJSON unmarshals the payload data into out. It works for payloads
// built with JSONPayload and for decoded payloads whose data is still a
// JSON-compatible value.
func (p EventPayload) AsJSON(out any) error {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("payload data is not JSON-encodable: %w", err)
	}
	return json.Unmarshal(data, out)
}

// VerifyIntegrity recomputes the checksum from the payload data and
// encoding and compares it to the recorded one. It is a pure predicate:
// a missing checksum verifies true (integrity untracked), and data that
// cannot be decoded verifies false rather than returning an error.
func (p EventPayload) VerifyIntegrity() bool {
	if p.Checksum == "" {
		return true
	}
	s, ok := p.AsString()
	if !ok {
		return false
	}
	var raw []byte
	switch p.Encoding {
	case EncodingBase64:
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return false
		}
		raw = decoded
	case EncodingUTF8:
		raw = []byte(s)
	default:
		return false
	}
	return fmt.Sprintf("%x", md5.Sum(raw)) == p.Checksum
}
