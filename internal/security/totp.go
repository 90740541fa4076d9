package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// totpDigits and totpStep match the defaults nearly every authenticator
// app and the platforms this core targets assume (RFC 6238 §5.2).
const (
	totpDigits = 6
	totpStep   = 30 * time.Second
)

// GenerateTOTPSeed returns a fresh 20-byte random seed, base32-encoded
// without padding, suitable for storage and for authenticator provisioning.
func GenerateTOTPSeed() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate totp seed: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// TOTPCode computes the RFC 6238 time-based one-time password for seed at
// instant t, truncated to totpDigits.
func TOTPCode(seed string, t time.Time) (string, error) {
	key, err := decodeSeed(seed)
	if err != nil {
		return "", err
	}
	counter := uint64(t.Unix()) / uint64(totpStep.Seconds())

	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(counterBytes[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := truncated % pow10(totpDigits)
	return fmt.Sprintf("%0*d", totpDigits, code), nil
}

// VerifyTOTP checks code against seed, allowing the previous and next step
// to absorb clock skew between this core and the platform's verifier.
func VerifyTOTP(seed, code string, now time.Time) (bool, error) {
	for _, skew := range []time.Duration{-totpStep, 0, totpStep} {
		want, err := TOTPCode(seed, now.Add(skew))
		if err != nil {
			return false, err
		}
		if hmac.Equal([]byte(want), []byte(code)) {
			return true, nil
		}
	}
	return false, nil
}

func decodeSeed(seed string) ([]byte, error) {
	seed = strings.ToUpper(strings.TrimSpace(seed))
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(seed)
	if err != nil {
		return nil, fmt.Errorf("decode totp seed: %w", err)
	}
	return key, nil
}

func pow10(n int) uint32 {
	v := uint32(1)
	for range n {
		v *= 10
	}
	return v
}
