package totp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"
)

// SecretLength is the number of Base32 symbols in a generated secret
// (160 random bits, the RFC 4226 recommended key size for HMAC-SHA1).
const SecretLength = 32

// GenerateSecret returns a new random Base32 secret of SecretLength symbols.
func GenerateSecret() string {
	buf := make([]byte, SecretLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base32Alphabet))))
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		buf[i] = base32Alphabet[n.Int64()]
	}
	return string(buf)
}

// ProvisioningURL builds the otpauth://totp URI that authenticator apps
// consume (usually rendered as a QR code).
func ProvisioningURL(secret, accountLabel, issuer string) string {
	label := url.PathEscape(issuer + ":" + accountLabel)
	params := url.Values{}
	params.Set("secret", secret)
	params.Set("issuer", issuer)
	params.Set("algorithm", "SHA1")
	params.Set("digits", fmt.Sprint(Digits))
	params.Set("period", fmt.Sprint(Period))
	return "otpauth://totp/" + label + "?" + params.Encode()
}

// GenerateBackupCodes returns count single-use recovery codes in
// NNNN-NNNN format (two zero-padded four-digit blocks).
func GenerateBackupCodes(count int) []string {
	codes := make([]string, count)
	for i := range codes {
		a := randomUint(10000)
		b := randomUint(10000)
		codes[i] = fmt.Sprintf("%04d-%04d", a, b)
	}
	return codes
}

func randomUint(max int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return n.Int64()
}
