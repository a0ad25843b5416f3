package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const sessionFormatVersionCurrent = 1

const flagRememberMe = 1 << 0

func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	for _, field := range []string{s.UserID, s.IPAddress, s.UserAgent} {
		if len(field) > 0xffff {
			return nil, errors.New("session field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	var flags byte
	if s.RememberMe {
		flags |= flagRememberMe
	}
	buf.WriteByte(flags)

	for _, ts := range []time.Time{s.CreatedAt, s.ExpiresAt, s.RevokedAt} {
		if err := binary.Write(&buf, binary.BigEndian, toMillis(ts)); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode. The caller fills in ID from the key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	var fields [3]string
	for i := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		fields[i] = string(raw)
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	var stamps [3]int64
	for i := range stamps {
		if err := binary.Read(reader, binary.BigEndian, &stamps[i]); err != nil {
			return nil, err
		}
	}

	return &Session{
		UserID:     fields[0],
		IPAddress:  fields[1],
		UserAgent:  fields[2],
		RememberMe: flags&flagRememberMe != 0,
		CreatedAt:  fromMillis(stamps[0]),
		ExpiresAt:  fromMillis(stamps[1]),
		RevokedAt:  fromMillis(stamps[2]),
	}, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
