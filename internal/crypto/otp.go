package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
)

const (
	digitChars = "0123456789"

	// OTPLength is the number of digits in a one-time code.
	OTPLength = 6
)

// GenerateOTP returns a zero-padded numeric code of OTPLength digits.
// Every digit is drawn independently with crypto/rand, so each code in
// 000000-999999 is equally likely.
func GenerateOTP() (string, error) {
	result := make([]byte, OTPLength)
	for i := range result {
		ch, err := randChar(digitChars)
		if err != nil {
			return "", err
		}
		result[i] = ch
	}
	return string(result), nil
}

// HashOTP returns the hex-encoded SHA-256 digest of a plaintext code.
func HashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// OTPHashEqual compares two code digests in constant time.
func OTPHashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// randChar picks a random character from charset using crypto/rand.
// rand.Int samples uniformly in [0, len), avoiding modulo bias.
func randChar(charset string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
	if err != nil {
		return 0, err
	}
	return charset[n.Int64()], nil
}
