package session

import (
	"testing"
)

// FuzzSessionDecode feeds arbitrary bytes to the decoder.
// Goal: no panics, and every successful decode re-encodes cleanly.
func FuzzSessionDecode(f *testing.F) {
	sess := &Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    1700003600,
	}
	encoded, err := Encode(sess)
	if err == nil {
		f.Add(encoded)
	}
	f.Add([]byte{})
	f.Add([]byte("null"))
	f.Add([]byte(`{"access_token":1}`))
	f.Add([]byte(`{"expires_at":"soon"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		decoded, err := Decode(data)
		if err != nil {
			return
		}
		if decoded == nil {
			t.Fatal("nil session without error")
		}
		if _, err := Encode(decoded); err != nil {
			t.Fatalf("re-encode failed: %v", err)
		}
	})
}
