package customer

import "testing"

func TestNormalizeCPF(t *testing.T) {
	cases := map[string]string{
		"529.982.247-25": "52998224725",
		"52998224725":    "52998224725",
		" 390 533 447 05 ": "39053344705",
		"abc":            "",
	}
	for in, want := range cases {
		if got := NormalizeCPF(in); got != want {
			t.Errorf("NormalizeCPF(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidCPF(t *testing.T) {
	valid := []string{"529.982.247-25", "52998224725", "390.533.447-05"}
	for _, cpf := range valid {
		if !ValidCPF(cpf) {
			t.Errorf("ValidCPF(%q) = false, want true", cpf)
		}
	}
	invalid := []string{
		"529.982.247-26", // wrong check digit
		"111.111.111-11", // repeated digits pass the checksum but are not issued
		"1234567890",     // too short
		"",
	}
	for _, cpf := range invalid {
		if ValidCPF(cpf) {
			t.Errorf("ValidCPF(%q) = true, want false", cpf)
		}
	}
}

func TestMaskName(t *testing.T) {
	cases := map[string]string{
		"Maria Clara dos Santos": "Maria C. D. S.",
		"Maria Ángela Souza":     "Maria Á. S.",
		"José Ötávio":            "José Ö.",
		"João":                   "João",
		"ana silva":              "ana S.",
		"":                       "",
		"   ":                    "",
	}
	for in, want := range cases {
		if got := MaskName(in); got != want {
			t.Errorf("MaskName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskCPF(t *testing.T) {
	if got := MaskCPF("529.982.247-25"); got != "***.982.247-**" {
		t.Errorf("MaskCPF = %q", got)
	}
	if got := MaskCPF("123"); got != "" {
		t.Errorf("MaskCPF on short input = %q, want empty", got)
	}
}
