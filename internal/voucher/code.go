package voucher

import (
	"crypto/rand"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const codePrefix = "ROC-"

// codeAlphabet deliberately omits 0/O and 1/I so codes can be read back over
// the counter without ambiguity.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const codeSuffixLen = 5

var bareCodeRe = regexp.MustCompile(`^ROC[A-Z0-9]{5}$`)

// NormalizeCode canonicalizes operator input into the stored code form. It
// accepts typed codes in any case, codes with stray punctuation or spaces,
// bare codes missing the dash, and full QR URLs carrying a code query
// parameter. The result is not guaranteed to reference an existing voucher.
func NormalizeCode(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			if c := u.Query().Get("code"); c != "" {
				s = c
			}
		}
	}
	s = strings.ToUpper(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if bareCodeRe.MatchString(cleaned) {
		cleaned = codePrefix + cleaned[3:]
	}
	return cleaned
}

// GenerateCode produces a fresh random voucher code such as ROC-7KM2X.
// Uniqueness is enforced at the store; callers retry on conflict.
func GenerateCode() (string, error) {
	buf := make([]byte, codeSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("voucher: generate code: %w", err)
	}
	out := make([]byte, codeSuffixLen)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return codePrefix + string(out), nil
}
