package request

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// NonceBytes is the entropy drawn per nonce.
const NonceBytes = 16

const maxNonceDraws = 4

// NewNonce draws a hex-encoded nonce from src that differs from previous.
func NewNonce(src io.Reader, previous string) (string, error) {
	if src == nil {
		src = rand.Reader
	}
	buf := make([]byte, NonceBytes)
	for range maxNonceDraws {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("read nonce entropy: %w", err)
		}
		n := hex.EncodeToString(buf)
		if n != previous {
			return n, nil
		}
	}
	return "", fmt.Errorf("nonce source repeated the previous nonce %d times", maxNonceDraws)
}
