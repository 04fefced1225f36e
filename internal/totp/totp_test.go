package totp

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestDecodeBase32_KnownVectors(t *testing.T) {
	// RFC 4648 test vectors
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"MY======", "f"},
		{"MZXQ====", "fo"},
		{"MZXW6===", "foo"},
		{"MZXW6YQ=", "foob"},
		{"MZXW6YTB", "fooba"},
		{"MZXW6YTBOI======", "foobar"},
	}
	for _, tt := range tests {
		got, err := DecodeBase32(tt.in)
		if err != nil {
			t.Errorf("DecodeBase32(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("DecodeBase32(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeBase32_RejectsMalformed(t *testing.T) {
	bad := []string{
		"MZXW6Y==",   // 2 padding chars is never valid
		"MZX=====",   // 5 padding chars is never valid
		"MZXW6YT=B",  // padding before the end
		"MZXW6YT0",   // '0' is outside the alphabet
		"mzxw6ytb1",  // lowercase and '1' rejected
		"MZXW 6YTB",  // embedded space
		"========",   // 8 padding chars
		"MZXW6YTB!!", // punctuation
	}
	for _, in := range bad {
		if _, err := DecodeBase32(in); err == nil {
			t.Errorf("DecodeBase32(%q) should have failed", in)
		}
	}
}

func TestComputeCode_RFC6238Vectors(t *testing.T) {
	// RFC 6238 Appendix B SHA-1 vectors, truncated to 6 digits.
	// Secret is the Base32 encoding of ASCII "12345678901234567890".
	const secret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

	tests := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}
	for _, tt := range tests {
		counter := uint64(tt.unix / Period)
		got, err := ComputeCode(secret, counter)
		if err != nil {
			t.Fatalf("ComputeCode(counter=%d): %v", counter, err)
		}
		if got != tt.want {
			t.Errorf("ComputeCode at t=%d = %s, want %s", tt.unix, got, tt.want)
		}
	}
}

func TestComputeCode_AlwaysSixDigits(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	pattern := regexp.MustCompile(`^\d{6}$`)
	for counter := uint64(0); counter < 200; counter++ {
		code, err := ComputeCode(secret, counter)
		if err != nil {
			t.Fatalf("ComputeCode(%d): %v", counter, err)
		}
		if !pattern.MatchString(code) {
			t.Fatalf("ComputeCode(%d) = %q, not 6 digits", counter, code)
		}
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	now := time.Unix(1700000000, 0)
	counter := uint64(now.Unix() / Period)

	code, err := ComputeCode(secret, counter)
	if err != nil {
		t.Fatal(err)
	}

	if !VerifyAt(secret, code, now, 0) {
		t.Error("freshly computed code should verify with window=0")
	}
}

func TestVerify_WindowTolerance(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	now := time.Unix(1700000000, 0)
	counter := uint64(now.Unix() / Period)

	prev, _ := ComputeCode(secret, counter-1)
	next, _ := ComputeCode(secret, counter+1)

	// Adjacent-step codes pass with window=1
	if !VerifyAt(secret, prev, now, 1) {
		t.Error("code from counter-1 should verify with window=1")
	}
	if !VerifyAt(secret, next, now, 1) {
		t.Error("code from counter+1 should verify with window=1")
	}

	// ...and fail with window=0
	if VerifyAt(secret, prev, now, 0) {
		t.Error("code from counter-1 should NOT verify with window=0")
	}
	if VerifyAt(secret, next, now, 0) {
		t.Error("code from counter+1 should NOT verify with window=0")
	}

	// Two steps out fails even with window=1
	far, _ := ComputeCode(secret, counter+2)
	if VerifyAt(secret, far, now, 1) {
		t.Error("code from counter+2 should NOT verify with window=1")
	}
}

func TestVerify_StripsWhitespace(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	now := time.Unix(1700000000, 0)
	code, _ := ComputeCode(secret, uint64(now.Unix()/Period))

	spaced := " " + code[:3] + " " + code[3:] + "\t"
	if !VerifyAt(secret, spaced, now, 0) {
		t.Error("whitespace in the submitted code should be ignored")
	}
}

func TestVerify_InvalidSecretIsFalseNotPanic(t *testing.T) {
	if VerifyAt("NOT!VALID!BASE32", "123456", time.Unix(1700000000, 0), 1) {
		t.Error("invalid secret must verify as false")
	}
	if VerifyAt("MZXW6Y==", "123456", time.Unix(1700000000, 0), 1) {
		t.Error("malformed padding must verify as false")
	}
}

func TestGenerateSecret(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		s := GenerateSecret()
		if len(s) != SecretLength {
			t.Fatalf("secret length = %d, want %d", len(s), SecretLength)
		}
		if _, err := DecodeBase32(s); err != nil {
			t.Fatalf("generated secret %q does not decode: %v", s, err)
		}
		if seen[s] {
			t.Fatalf("duplicate secret generated: %q", s)
		}
		seen[s] = true
	}
}

func TestProvisioningURL(t *testing.T) {
	u := ProvisioningURL("JBSWY3DPEHPK3PXP", "reviewer@example.com", "ReviewFlow")

	if !strings.HasPrefix(u, "otpauth://totp/ReviewFlow:reviewer@example.com?") {
		t.Errorf("unexpected URL prefix: %s", u)
	}
	for _, want := range []string{"secret=JBSWY3DPEHPK3PXP", "issuer=ReviewFlow", "digits=6", "period=30", "algorithm=SHA1"} {
		if !strings.Contains(u, want) {
			t.Errorf("URL missing %q: %s", want, u)
		}
	}
}

func TestGenerateBackupCodes(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{4}-\d{4}$`)
	codes := GenerateBackupCodes(10)
	if len(codes) != 10 {
		t.Fatalf("got %d codes, want 10", len(codes))
	}
	for _, c := range codes {
		if !pattern.MatchString(c) {
			t.Errorf("backup code %q does not match NNNN-NNNN", c)
		}
	}
}
