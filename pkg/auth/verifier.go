package auth

import (
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureVerifier checks that a wallet signed the given message. The
// production verifier plugs in chain-specific cryptography; the engine only
// depends on this interface.
type SignatureVerifier interface {
	Verify(message, signature, address, chainType string) error
}

// DevVerifier accepts any structurally valid signature. For local
// development and tests only, it performs no cryptographic verification.
type DevVerifier struct{}

func (DevVerifier) Verify(message, signature, address, chainType string) error {
	if message == "" || address == "" {
		return errors.New("empty message or address")
	}
	sig := strings.TrimPrefix(signature, "0x")
	if len(sig) < 64 {
		return errors.New("signature too short")
	}
	if _, err := hex.DecodeString(sig); err != nil {
		return errors.New("signature is not hex")
	}
	return nil
}
