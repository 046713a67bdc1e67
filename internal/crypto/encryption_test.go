package crypto

import (
	"encoding/base64"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	encryptor, err := NewEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}

	for _, plaintext := range []string{"", "password", "pässwörd with ünïcode", "a very long password that exceeds one block size for sure"} {
		ciphertext, err := encryptor.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q) failed: %v", plaintext, err)
		}

		decrypted, err := encryptor.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if decrypted != plaintext {
			t.Errorf("Roundtrip mismatch: got %q, want %q", decrypted, plaintext)
		}
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	encryptor, err := NewEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}

	first, err := encryptor.Encrypt("password")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	second, err := encryptor.Encrypt("password")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if string(first) == string(second) {
		t.Error("Expected distinct ciphertexts for the same plaintext")
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	encryptor, err := NewEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}
	other, err := NewEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}

	ciphertext, err := encryptor.Encrypt("password")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := other.Decrypt(ciphertext); err == nil {
		t.Error("Expected decryption with the wrong key to fail")
	}
}

func TestDecryptCorruptedCiphertext(t *testing.T) {
	encryptor, err := NewEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}

	ciphertext, err := encryptor.Encrypt("password")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0xff

	if _, err := encryptor.Decrypt(ciphertext); err == nil {
		t.Error("Expected decryption of corrupted ciphertext to fail")
	}

	if _, err := encryptor.Decrypt([]byte{1, 2, 3}); err == nil {
		t.Error("Expected decryption of truncated ciphertext to fail")
	}
}

func TestNewEncryptorRejectsBadKeys(t *testing.T) {
	if _, err := NewEncryptor("not base64!!!"); err == nil {
		t.Error("Expected error for invalid base64")
	}

	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	if _, err := NewEncryptor(short); err == nil {
		t.Error("Expected error for a key shorter than 32 bytes")
	}
}
