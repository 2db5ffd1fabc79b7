// Package crypto предоставляет AES-256-GCM шифрование конвертов процессов.
//
// Формат зашифрованного блоба:
//
//	[2B version][1B algorithm][16B process_id][12B nonce][...ciphertext]
//
// process_id: UUID процесса в бинарном виде, он же associated data GCM
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

const (
	headerVersion   = byte(0x01)
	headerVersionLo = byte(0x00)
	algoAES256GCM   = byte(0x01)

	idSize     = 16
	nonceSize  = 12
	headerSize = 2 + 1 + idSize + nonceSize

	// KeySize - длина ключа AES-256
	KeySize = 32
)

// Encrypt шифрует plaintext ключом key (32 байта), привязывая блоб к ID процесса.
func Encrypt(key, plaintext []byte, id uuid.UUID) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("encrypt: generate nonce: %w", err)
	}

	out := make([]byte, 0, headerSize+len(plaintext)+gcm.Overhead())
	out = append(out, headerVersion, headerVersionLo, algoAES256GCM)
	out = append(out, id[:]...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, id[:]), nil
}

// Decrypt расшифровывает блоб, созданный Encrypt, и возвращает ID процесса из заголовка.
func Decrypt(key, blob []byte) (uuid.UUID, []byte, error) {
	id, err := ExtractID(blob)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("decrypt: %w", err)
	}
	if blob[2] != algoAES256GCM {
		return uuid.Nil, nil, fmt.Errorf("decrypt: unsupported algorithm: 0x%02x", blob[2])
	}

	gcm, err := newGCM(key)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("decrypt: %w", err)
	}

	nonce := blob[3+idSize : headerSize]
	plaintext, err := gcm.Open(nil, nonce, blob[headerSize:], id[:])
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("decrypt: authentication failed (wrong key or corrupted data): %w", err)
	}
	return id, plaintext, nil
}

// ExtractID читает ID процесса из заголовка без расшифровки
func ExtractID(blob []byte) (uuid.UUID, error) {
	if len(blob) < headerSize {
		return uuid.Nil, fmt.Errorf("blob too short: %d bytes", len(blob))
	}
	if blob[0] != headerVersion {
		return uuid.Nil, fmt.Errorf("unsupported version: 0x%02x", blob[0])
	}
	return uuid.FromBytes(blob[3 : 3+idSize])
}

// ParseKey принимает ключ в hex (64 символа) или base64 и проверяет длину
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	var (
		key []byte
		err error
	)
	if len(s) == hex.EncodedLen(KeySize) {
		key, err = hex.DecodeString(s)
	} else {
		key, err = base64.StdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}
