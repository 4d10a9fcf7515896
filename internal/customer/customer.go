package customer

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrNotFound is returned when no profile matches the lookup.
var ErrNotFound = errors.New("customer not found")

// Profile is the customer view of an account. CPF is stored as 11 bare
// digits; formatting is a presentation concern.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CPF       string    `json:"cpf"`
	CreatedAt time.Time `json:"createdAt"`
}

// NormalizeCPF strips everything but digits so 123.456.789-09 and
// 12345678909 compare equal.
func NormalizeCPF(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCPF verifies the two CPF check digits. It accepts formatted or bare
// input and rejects the all-same-digit sequences the algorithm would
// otherwise pass.
func ValidCPF(raw string) bool {
	d := NormalizeCPF(raw)
	if len(d) != 11 {
		return false
	}
	same := true
	for i := 1; i < 11; i++ {
		if d[i] != d[0] {
			same = false
			break
		}
	}
	if same {
		return false
	}
	for _, n := range []int{9, 10} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(d[i]-'0') * (n + 1 - i)
		}
		check := (sum * 10) % 11 % 10
		if check != int(d[n]-'0') {
			return false
		}
	}
	return true
}

// MaskName keeps the first name and reduces the rest to initials, so a
// merchant screen can confirm identity without exposing the full name.
func MaskName(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return ""
	}
	out := []string{parts[0]}
	for _, p := range parts[1:] {
		r, _ := utf8.DecodeRuneInString(p)
		out = append(out, strings.ToUpper(string(r))+".")
	}
	return strings.Join(out, " ")
}

// MaskCPF shows only the middle digits, the portion Brazilian receipts
// conventionally print: ***.456.789-**.
func MaskCPF(cpf string) string {
	d := NormalizeCPF(cpf)
	if len(d) != 11 {
		return ""
	}
	return "***." + d[3:6] + "." + d[6:9] + "-**"
}
