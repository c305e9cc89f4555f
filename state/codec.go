package state

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// Encode serializes the aggregate to its wire blob:
// base64(zlib(JSON{four stacks})).
func Encode(s *AggregateState) (string, error) {
	wire := wireState{
		ProfileImages: s.ProfileImages,
		VerifyKeys:    s.VerifyKeys.Snapshot(),
		PublicKeys:    s.PublicKeys.Snapshot(),
		Messages:      make([]json.RawMessage, 0, len(s.Messages)),
	}
	if wire.ProfileImages == nil {
		wire.ProfileImages = map[string]string{}
	}

	for _, m := range s.Messages {
		raw, err := json.Marshal(recordFromMessage(m))
		if err != nil {
			return "", fmt.Errorf("marshal message record: %w", err)
		}
		wire.Messages = append(wire.Messages, raw)
	}

	plain, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}

	var compressed bytes.Buffer
	writer := zlib.NewWriter(&compressed)
	if _, err := writer.Write(plain); err != nil {
		return "", fmt.Errorf("compress state: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("compress state: %w", err)
	}

	return base64.StdEncoding.EncodeToString(compressed.Bytes()), nil
}

// Decode parses a wire blob back into an aggregate. The empty string is
// the valid "no data yet" state. Malformed individual log entries are
// dropped rather than failing the whole decode; only a blob whose outer
// layers (base64, zlib, top-level JSON) are broken returns an error.
func Decode(blob string) (*AggregateState, error) {
	s := NewState()
	if blob == "" {
		return s, nil
	}

	compressed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("decode state base64: %w", err)
	}

	reader, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("inflate state: %w", err)
	}
	plain, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("inflate state: %w", err)
	}
	if err := reader.Close(); err != nil {
		return nil, fmt.Errorf("inflate state: %w", err)
	}

	var wire wireState
	if err := json.Unmarshal(plain, &wire); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}

	for userID, imageURL := range wire.ProfileImages {
		s.SetProfileImage(userID, imageURL)
	}
	for userID, key := range wire.VerifyKeys {
		s.VerifyKeys.InsertIfAbsent(userID, key)
	}
	for userID, key := range wire.PublicKeys {
		s.PublicKeys.InsertIfAbsent(userID, key)
	}

	for _, raw := range wire.Messages {
		var record messageRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			continue
		}
		message, err := record.toMessage()
		if err != nil {
			continue
		}
		s.Append(message)
	}

	return s, nil
}
