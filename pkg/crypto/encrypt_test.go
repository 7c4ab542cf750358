package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(testKey())
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	tests := []string{"", "tradovate-demo-secret", "ключ с юникодом"}
	for _, plaintext := range tests {
		sealed, err := s.Seal(plaintext)
		if err != nil {
			t.Fatalf("Seal(%q): %v", plaintext, err)
		}
		opened, err := s.Open(sealed)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if opened != plaintext {
			t.Errorf("Open = %q, want %q", opened, plaintext)
		}
	}
}

func TestSealDifferentNonces(t *testing.T) {
	s, _ := NewSealer(testKey())
	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	if a == b {
		t.Error("two Seal calls produced identical ciphertext")
	}
}

func TestNewSealerInvalidKeyLength(t *testing.T) {
	for _, key := range [][]byte{nil, []byte("short"), make([]byte, 33)} {
		if _, err := NewSealer(key); !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("NewSealer(len=%d) error = %v, want ErrInvalidKeyLength", len(key), err)
		}
	}
}

func TestOpenErrors(t *testing.T) {
	s, _ := NewSealer(testKey())
	other, _ := NewSealer([]byte("fedcba9876543210fedcba9876543210"))
	sealed, _ := s.Seal("secret")

	tests := []struct {
		name    string
		sealer  *Sealer
		input   string
		wantErr error
	}{
		{"wrong key", other, sealed, ErrDecryptionFailed},
		{"not base64", s, "!!!", ErrInvalidCiphertext},
		{"too short", s, base64.StdEncoding.EncodeToString([]byte("abc")), ErrCiphertextTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.sealer.Open(tt.input); !errors.Is(err, tt.wantErr) {
				t.Errorf("Open error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncryptDecryptHelpers(t *testing.T) {
	enc, err := Encrypt("api-key", testKey())
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	dec, err := Decrypt(enc, testKey())
	if err != nil || dec != "api-key" {
		t.Errorf("Decrypt = %q, %v", dec, err)
	}
}

func TestParseKey(t *testing.T) {
	raw := testKey()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"hex", hex.EncodeToString(raw), false},
		{"base64", base64.StdEncoding.EncodeToString(raw), false},
		{"raw", string(raw), false},
		{"too short", "abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKey(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKey error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(key, raw) {
				t.Errorf("ParseKey = %x, want %x", key, raw)
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("len = %d, want %d", len(key), KeySize)
	}
}
