package ledger

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
)

// Encryptor produces the ciphertext of a choice for a private vote plan.
type Encryptor interface {
	Encrypt(key []byte, choice, options uint8) ([]byte, error)
}

// LocalEncryptor is the stand-in cryptosystem of the Local ledger. Its
// ciphertexts are tagged with the key they were made for and carry the choice
// in the clear.
type LocalEncryptor struct{}

var _ Encryptor = LocalEncryptor{}

func (LocalEncryptor) Encrypt(key []byte, choice, options uint8) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.New("missing encryption key")
	}
	if choice >= options {
		return nil, fmt.Errorf("choice %d out of range for %d options", choice, options)
	}
	return append(keyTag(key), choice), nil
}

func (LocalEncryptor) decrypt(key, ciphertext []byte) (uint8, error) {
	tag := keyTag(key)
	if len(ciphertext) != len(tag)+1 || !bytes.HasPrefix(ciphertext, tag) {
		return 0, errors.New("ciphertext was not made for this vote plan")
	}
	return ciphertext[len(tag)], nil
}

func keyTag(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:8]
}
