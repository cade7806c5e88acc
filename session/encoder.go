package session

import (
	"encoding/json"
	"errors"
)

// ErrCorrupt is returned by Decode when the stored bytes are not a session
// record.
var ErrCorrupt = errors.New("session record corrupt")

// Encode serializes s for storage.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	return json.Marshal(s)
}

// Decode parses a stored record. Anything that is not a JSON object yields
// ErrCorrupt.
func Decode(data []byte) (*Session, error) {
	if len(data) == 0 {
		return nil, ErrCorrupt
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Join(ErrCorrupt, err)
	}
	return &s, nil
}
