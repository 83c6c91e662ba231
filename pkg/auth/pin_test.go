package auth

import (
	"testing"
)

func TestValidatePIN(t *testing.T) {
	tests := []struct {
		pin   string
		valid bool
	}{
		{"1234", true},
		{"00000000", true},
		{"987654", true},
		{"123", false},
		{"123456789", false},
		{"12a4", false},
		{"", false},
		{"12 34", false},
		{"١٢٣٤", false}, // non-ASCII digits
	}

	for _, tt := range tests {
		err := ValidatePIN(tt.pin)
		if tt.valid && err != nil {
			t.Errorf("ValidatePIN(%q) = %v, want nil", tt.pin, err)
		}
		if !tt.valid && err != ErrInvalidPIN {
			t.Errorf("ValidatePIN(%q) = %v, want ErrInvalidPIN", tt.pin, err)
		}
	}
}

func TestHashAndComparePIN(t *testing.T) {
	hash, err := HashPIN("4821")
	if err != nil {
		t.Fatalf("HashPIN() = %v", err)
	}
	if hash == "4821" {
		t.Fatal("PIN must not be stored in plain text")
	}

	if !ComparePIN(hash, "4821") {
		t.Error("ComparePIN should accept the correct PIN")
	}
	if ComparePIN(hash, "1234") {
		t.Error("ComparePIN should reject a wrong PIN")
	}
	if ComparePIN("", "1234") {
		t.Error("ComparePIN should reject when no PIN is stored")
	}
	if ComparePIN(hash, "") {
		t.Error("ComparePIN should reject an empty PIN")
	}
	if ComparePIN(hash, "4821 ") {
		t.Error("ComparePIN should reject a malformed PIN")
	}
}

func TestHashPIN_RejectsInvalid(t *testing.T) {
	if _, err := HashPIN("12"); err != ErrInvalidPIN {
		t.Errorf("HashPIN(\"12\") = %v, want ErrInvalidPIN", err)
	}
}
