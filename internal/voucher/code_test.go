package voucher

import (
	"strings"
	"testing"
)

func TestNormalizeCode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase bare", "roc12345", "ROC-12345"},
		{"canonical", "ROC-12345", "ROC-12345"},
		{"lowercase with dash", "roc-12345", "ROC-12345"},
		{"surrounding whitespace", "  roc-12345\n", "ROC-12345"},
		{"stray punctuation", "roc 12345!", "ROC-12345"},
		{"qr url", "https://passaporte.example.com/v?code=roc-12345", "ROC-12345"},
		{"qr url bare code", "https://passaporte.example.com/v?code=ROC12345&utm=qr", "ROC-12345"},
		{"url without code param", "https://passaporte.example.com/v", "HTTPSPASSAPORTEEXAMPLECOMV"},
		{"empty", "", ""},
		{"garbage", "!!??", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeCode(tc.in); got != tc.want {
				t.Fatalf("NormalizeCode(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeCodeIdempotent(t *testing.T) {
	inputs := []string{"roc12345", "ROC-ABCDE", "https://x.test/v?code=rocwxyz2"}
	for _, in := range inputs {
		once := NormalizeCode(in)
		if twice := NormalizeCode(once); twice != once {
			t.Fatalf("normalization not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		if !strings.HasPrefix(code, "ROC-") || len(code) != len("ROC-")+codeSuffixLen {
			t.Fatalf("unexpected code shape: %q", code)
		}
		for _, r := range code[len("ROC-"):] {
			if !strings.ContainsRune(codeAlphabet, r) {
				t.Fatalf("code %q contains %q outside the alphabet", code, r)
			}
		}
		if got := NormalizeCode(code); got != code {
			t.Fatalf("generated code not canonical: %q normalized to %q", code, got)
		}
		seen[code] = true
	}
	if len(seen) < 90 {
		t.Fatalf("suspiciously many collisions: %d unique of 100", len(seen))
	}
}
