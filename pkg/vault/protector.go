package vault

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Protector encrypts and decrypts credential snapshots with key material the
// caller never supplies: it is implied by the current OS user on the current
// machine. A blob protected by one user or machine must fail to unprotect
// under another.
type Protector interface {
	Protect(plaintext []byte) ([]byte, error)
	Unprotect(blob []byte) ([]byte, error)
}

// ErrUnprotect is wrapped by every Unprotect failure.
var ErrUnprotect = errors.New("failed to unprotect credential state")

const (
	keyFileSize = 32
	blobMagic   = "UTV1"
	hkdfInfo    = "uitest storage state v1"
)

// KeyFileProtector seals blobs with XChaCha20-Poly1305 under a key derived
// from a random per-user secret file and a binding to the user and machine.
// The secret file is created 0600 on first Protect.
type KeyFileProtector struct {
	keyPath string
	binding []byte
}

// NewKeyFileProtector returns a protector using the secret at keyPath.
// binding identifies the principal (user + machine); DefaultProtector
// computes it from the OS.
func NewKeyFileProtector(keyPath string, binding []byte) *KeyFileProtector {
	return &KeyFileProtector{
		keyPath: keyPath,
		binding: append([]byte(nil), binding...),
	}
}

// Protect encrypts plaintext. Output layout: magic | nonce | ciphertext.
func (p *KeyFileProtector) Protect(plaintext []byte) ([]byte, error) {
	secret, err := p.secret(true)
	if err != nil {
		return nil, err
	}
	aead, err := p.aead(secret)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(blobMagic)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, blobMagic...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, []byte(blobMagic)), nil
}

// Unprotect decrypts a blob produced by Protect for the same principal.
func (p *KeyFileProtector) Unprotect(blob []byte) ([]byte, error) {
	header := len(blobMagic) + chacha20poly1305.NonceSizeX
	if len(blob) < header || !bytes.Equal(blob[:len(blobMagic)], []byte(blobMagic)) {
		return nil, fmt.Errorf("%w: unrecognized blob format", ErrUnprotect)
	}

	secret, err := p.secret(false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnprotect, err)
	}
	aead, err := p.aead(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnprotect, err)
	}

	nonce := blob[len(blobMagic):header]
	plaintext, err := aead.Open(nil, nonce, blob[header:], []byte(blobMagic))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnprotect, err)
	}
	return plaintext, nil
}

func (p *KeyFileProtector) aead(secret []byte) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, p.binding, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return aead, nil
}

// secret reads the per-user secret, creating it when create is set.
func (p *KeyFileProtector) secret(create bool) ([]byte, error) {
	data, err := os.ReadFile(p.keyPath)
	if err == nil {
		if len(data) != keyFileSize {
			return nil, fmt.Errorf("key file %s has unexpected size %d", p.keyPath, len(data))
		}
		return data, nil
	}
	if !os.IsNotExist(err) || !create {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	secret := make([]byte, keyFileSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	f, err := os.OpenFile(p.keyPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if os.IsExist(err) {
		// Another session created it first.
		return p.secret(false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create key file: %w", err)
	}
	if _, err := f.Write(secret); err != nil {
		f.Close()
		os.Remove(p.keyPath)
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close key file: %w", err)
	}
	return secret, nil
}
