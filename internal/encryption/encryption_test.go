package encryption

import (
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestEncryptDecrypt(t *testing.T) {
	svc, err := NewService(testKey)
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}

	sealed, err := svc.EncryptString("penicillin allergy")
	if err != nil {
		t.Fatalf("EncryptString() error: %v", err)
	}
	if strings.Contains(sealed, "penicillin") {
		t.Fatal("ciphertext contains plaintext")
	}

	plain, err := svc.DecryptString(sealed)
	if err != nil {
		t.Fatalf("DecryptString() error: %v", err)
	}
	if plain != "penicillin allergy" {
		t.Errorf("DecryptString() = %q", plain)
	}
}

func TestEmptyStringsStayEmpty(t *testing.T) {
	svc, err := NewService("")
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	sealed, err := svc.EncryptString("")
	if err != nil || sealed != "" {
		t.Errorf("EncryptString(\"\") = %q, %v", sealed, err)
	}
	plain, err := svc.DecryptString("")
	if err != nil || plain != "" {
		t.Errorf("DecryptString(\"\") = %q, %v", plain, err)
	}
}

func TestNewServiceRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"not-hex", "0011"} {
		if _, err := NewService(key); err == nil {
			t.Errorf("NewService(%q) expected error", key)
		}
	}
}

func TestDecryptTampered(t *testing.T) {
	svc, _ := NewService(testKey)
	other, _ := NewService("")
	sealed, _ := other.EncryptString("secret")
	if _, err := svc.DecryptString(sealed); err == nil {
		t.Error("expected error decrypting with a different key")
	}
	if _, err := svc.Decrypt("AAAA"); err != ErrCiphertextTooShort {
		t.Errorf("Decrypt(short) error = %v", err)
	}
}
