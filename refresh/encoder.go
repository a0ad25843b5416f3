package refresh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const tokenRecordVersion = 1

func encodeToken(t *Token) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(tokenRecordVersion)

	for _, s := range []string{t.ID, t.SessionID, t.UserID} {
		if len(s) > 0xffff {
			return nil, errors.New("refresh record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(s))); err != nil {
			return nil, err
		}
		buf.WriteString(s)
	}

	buf.Write(t.TokenHash[:])
	buf.Write(t.PreviousHash[:])

	if len(t.RetiredHashes) > maxRetiredHashes {
		return nil, errors.New("refresh record retains too many hashes")
	}
	buf.WriteByte(byte(len(t.RetiredHashes)))
	for _, h := range t.RetiredHashes {
		buf.Write(h[:])
	}

	for _, ts := range []time.Time{t.ExpiresAt, t.RotatedAt, t.RevokedAt} {
		if err := binary.Write(&buf, binary.BigEndian, unixMilli(ts)); err != nil {
			return nil, err
		}
	}

	var grace byte
	if t.GraceUsed {
		grace = 1
	}
	buf.WriteByte(grace)

	return buf.Bytes(), nil
}

func decodeToken(data []byte) (*Token, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenRecordVersion {
		return nil, errors.New("invalid refresh record version")
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

	t := &Token{ID: fields[0], SessionID: fields[1], UserID: fields[2]}
	if _, err := io.ReadFull(reader, t.TokenHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, t.PreviousHash[:]); err != nil {
		return nil, err
	}

	retired, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if int(retired) > maxRetiredHashes {
		return nil, errors.New("refresh record retains too many hashes")
	}
	if retired > 0 {
		t.RetiredHashes = make([][32]byte, retired)
		for i := range t.RetiredHashes {
			if _, err := io.ReadFull(reader, t.RetiredHashes[i][:]); err != nil {
				return nil, err
			}
		}
	}

	var stamps [3]int64
	for i := range stamps {
		if err := binary.Read(reader, binary.BigEndian, &stamps[i]); err != nil {
			return nil, err
		}
	}
	t.ExpiresAt = fromUnixMilli(stamps[0])
	t.RotatedAt = fromUnixMilli(stamps[1])
	t.RevokedAt = fromUnixMilli(stamps[2])

	grace, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	t.GraceUsed = grace == 1

	return t, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
