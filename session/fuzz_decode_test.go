package session

import (
	"testing"
	"time"
)

func FuzzDecode(f *testing.F) {
	valid, err := Encode(&Session{
		UserID:     "u1",
		IPAddress:  "203.0.113.7",
		UserAgent:  "curl/8.0",
		CreatedAt:  time.UnixMilli(1_700_000_000_000),
		ExpiresAt:  time.UnixMilli(1_700_086_400_000),
		RememberMe: true,
	})
	if err != nil {
		f.Fatalf("encode seed: %v", err)
	}

	f.Add(valid)
	f.Add([]byte{})
	f.Add(valid[:1])
	f.Add(valid[:len(valid)-1])

	f.Fuzz(func(t *testing.T, data []byte) {
		sess, err := Decode(data)
		if err != nil {
			return
		}
		if _, err := Encode(sess); err != nil {
			t.Fatalf("re-encode decoded session: %v", err)
		}
	})
}

func TestEncodeDecodePreservesFields(t *testing.T) {
	in := &Session{
		UserID:     "u1",
		IPAddress:  "2001:db8::1",
		UserAgent:  "Mozilla/5.0",
		CreatedAt:  time.UnixMilli(1_700_000_000_000),
		ExpiresAt:  time.UnixMilli(1_700_000_900_000),
		RememberMe: true,
		RevokedAt:  time.UnixMilli(1_700_000_100_000),
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.UserID != in.UserID || out.IPAddress != in.IPAddress || out.UserAgent != in.UserAgent {
		t.Fatalf("string fields mismatch: %+v", out)
	}
	if !out.RememberMe || !out.RevokedAt.Equal(in.RevokedAt) || !out.ExpiresAt.Equal(in.ExpiresAt) {
		t.Fatalf("flags or timestamps mismatch: %+v", out)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	data, err := Encode(&Session{UserID: "u1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data[0] = 9
	if _, err := Decode(data); err == nil {
		t.Fatal("expected version error")
	}
}
