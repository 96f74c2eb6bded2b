package hxcommunity

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Cipher is the symmetric envelope around every stored value.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

var errBadCiphertext = errors.New("bad ciphertext")

var saltedMagic = []byte("Salted__")

// PassphraseCipher is AES-256-CBC keyed from a passphrase, in the OpenSSL
// "Salted__" envelope (EVP_BytesToKey, MD5, one iteration) and base64
// encoded. Values written by the browser client decrypt with the same
// passphrase and vice versa.
type PassphraseCipher struct {
	passphrase []byte
	rand       io.Reader
}

func NewPassphraseCipher(passphrase string) *PassphraseCipher {
	return &PassphraseCipher{passphrase: []byte(passphrase), rand: rand.Reader}
}

func (p *PassphraseCipher) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, 8)
	if _, err := io.ReadFull(p.rand, salt); err != nil {
		return "", fmt.Errorf("failed to read salt: %w", err)
	}
	key, iv := evpBytesToKey(p.passphrase, salt, 32, aes.BlockSize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(saltedMagic)+len(salt)+len(padded))
	copy(out, saltedMagic)
	copy(out[len(saltedMagic):], salt)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[len(saltedMagic)+len(salt):], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (p *PassphraseCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadCiphertext, err)
	}
	if len(raw) < 16 || !bytes.Equal(raw[:8], saltedMagic) {
		return "", fmt.Errorf("%w: missing salt header", errBadCiphertext)
	}
	salt, body := raw[8:16], raw[16:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: truncated block", errBadCiphertext)
	}
	key, iv := evpBytesToKey(p.passphrase, salt, 32, aes.BlockSize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)
	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// evpBytesToKey derives key and iv the way OpenSSL's EVP_BytesToKey does
// with MD5 and a single round.
func evpBytesToKey(passphrase, salt []byte, keyLen, ivLen int) ([]byte, []byte) {
	var derived, prev []byte
	for len(derived) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keyLen], derived[keyLen : keyLen+ivLen]
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty block", errBadCiphertext)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", errBadCiphertext)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", errBadCiphertext)
		}
	}
	return b[:len(b)-n], nil
}

// PlainCipher stores values unencrypted.
type PlainCipher struct{}

func (PlainCipher) Encrypt(plaintext string) (string, error)  { return plaintext, nil }
func (PlainCipher) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }
