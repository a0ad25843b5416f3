package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

var errFieldTooLong = errors.New("record field too long")

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 0xffff {
		return errFieldTooLong
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func writeTime(buf *bytes.Buffer, t time.Time) error {
	var ms int64
	if !t.IsZero() {
		ms = t.UnixMilli()
	}
	return binary.Write(buf, binary.BigEndian, ms)
}

func readTime(r *bytes.Reader) (time.Time, error) {
	var ms int64
	if err := binary.Read(r, binary.BigEndian, &ms); err != nil {
		return time.Time{}, err
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

func ttlUntil(expiresAt, now time.Time, extra time.Duration) time.Duration {
	ttl := expiresAt.Sub(now) + extra
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
