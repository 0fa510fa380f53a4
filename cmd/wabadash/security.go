package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"wabadash/internal/constants"
)

// signBody returns the signature header value for body under secret
func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return constants.SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// verifySignature checks an X-Hub-Signature-256 value against the raw body.
// The error text never contains the secret or the expected digest.
func verifySignature(body []byte, header, secret string) error {
	parts := strings.SplitN(strings.TrimSpace(header), "=", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "sha256") {
		return fmt.Errorf("invalid signature format in header %s", constants.SignatureHeader)
	}

	expected := signBody(body, secret)[len(constants.SignaturePrefix):]
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(parts[1]))) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
