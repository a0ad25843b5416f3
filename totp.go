package authcore

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

var errEmptyTOTPSecret = errors.New("empty totp secret")

// TOTPProvision is a freshly generated authenticator secret. Secret is what
// the caller stores through its UserProvider; URI is the otpauth:// link
// for QR rendering.
type TOTPProvision struct {
	Secret       []byte
	SecretBase32 string
	URI          string
}

type totpVerifier struct {
	period    int
	digits    int
	skew      int
	algorithm string
}

func newTOTPVerifier(cfg TwoFactorConfig) *totpVerifier {
	alg := cfg.Algorithm
	if alg == "" {
		alg = "SHA1"
	}
	return &totpVerifier{period: cfg.Period, digits: cfg.Digits, skew: cfg.Skew, algorithm: alg}
}

func (v *totpVerifier) provision(issuer, account string) (*TOTPProvision, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)

	label := url.PathEscape(issuer + ":" + account)
	q := url.Values{}
	q.Set("secret", enc)
	q.Set("issuer", issuer)
	q.Set("period", strconv.Itoa(v.period))
	q.Set("digits", strconv.Itoa(v.digits))
	q.Set("algorithm", strings.ToUpper(v.algorithm))

	return &TOTPProvision{
		Secret:       raw,
		SecretBase32: enc,
		URI:          "otpauth://totp/" + label + "?" + q.Encode(),
	}, nil
}

// verify checks code against the windows around now and returns the
// matching time-step counter. Replay checks belong to the caller.
func (v *totpVerifier) verify(secret []byte, code string, now time.Time) (bool, int64, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != v.digits || !isDigits(trimmed) {
		return false, 0, nil
	}
	if len(secret) == 0 {
		return false, 0, errEmptyTOTPSecret
	}

	base := now.Unix() / int64(v.period)
	for step := -v.skew; step <= v.skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(secret, counter, v.digits, v.algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
