package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"international", "+237655443322", "+237655443322", false},
		{"double zero prefix", "00237655443322", "+237655443322", false},
		{"local mobile", "655443322", "+237655443322", false},
		{"local mobile leading 9", "988776655", "+237988776655", false},
		{"country code no plus", "237655443322", "+237655443322", false},
		{"formatted", "+237 6 55 44 33 22", "+237655443322", false},
		{"dashes and parens", "(237) 655-443-322", "+237655443322", false},
		{"us number", "+15550001111", "+15550001111", false},
		{"empty", "", "", true},
		{"whitespace", "   ", "", true},
		{"nan artifact", "nan", "", true},
		{"none artifact", "None", "", true},
		{"too short", "+1234567", "", true},
		{"too long", "+1234567890123456", "", true},
		{"repeated digit", "+111111111", "", true},
		{"letters only", "call me", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"+237655443322",
		"655443322",
		"00237655443322",
		"+1 555 000 1111",
		"237 655 443 322",
	}

	for _, in := range inputs {
		once, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q) failed: %v", in, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(Normalize(%q)) failed: %v", in, err)
		}
		if once != twice {
			t.Errorf("not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestForProvider(t *testing.T) {
	if got := ForProvider("+237655443322"); got != "237655443322" {
		t.Errorf("ForProvider = %q, want %q", got, "237655443322")
	}
	if got := ForProvider("237655443322"); got != "237655443322" {
		t.Errorf("ForProvider without plus = %q, want unchanged", got)
	}
}

func TestValid(t *testing.T) {
	if !Valid("655443322") {
		t.Error("expected local mobile to be valid")
	}
	if Valid("nan") {
		t.Error("expected nan artifact to be invalid")
	}
}
