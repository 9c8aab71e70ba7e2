// Package seatgrant generates seat grant keys and issues grants for local play
// and lobby integration tests.
package seatgrant

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/seat"
)

// GenerateKeys writes a new key pair as shell exports.
func GenerateKeys(out io.Writer, reader io.Reader) error {
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}
	publicKey, privateKey, err := ed25519.GenerateKey(reader)
	if err != nil {
		return fmt.Errorf("generate seat grant key: %w", err)
	}
	if _, err := fmt.Fprintf(out, "export RULECORE_SEAT_SIGNER_PRIVATE_KEY=%s\n", base64.RawStdEncoding.EncodeToString(privateKey)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "export RULECORE_ENGINE_SEAT_PUBLIC_KEY=%s\n", base64.RawStdEncoding.EncodeToString(publicKey)); err != nil {
		return err
	}
	return nil
}

// IssueRequest describes one grant.
type IssueRequest struct {
	PrivateKey string
	Issuer     string
	Audience   string
	GameID     string
	Player     int
	TTL        time.Duration
}

// Issue writes a signed grant for req.
func Issue(out io.Writer, req IssueRequest) error {
	if out == nil {
		return errors.New("output is required")
	}
	if strings.TrimSpace(req.GameID) == "" {
		return errors.New("game id is required")
	}
	if req.Player <= 0 {
		return errors.New("player is required")
	}
	key, err := base64.RawStdEncoding.DecodeString(strings.TrimSpace(req.PrivateKey))
	if err != nil {
		return fmt.Errorf("decode private key: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("private key must be %d bytes", ed25519.PrivateKeySize)
	}
	token, err := seat.Signer{
		Issuer:   req.Issuer,
		Audience: req.Audience,
		Key:      ed25519.PrivateKey(key),
		TTL:      req.TTL,
	}.Issue(req.GameID, object.ID(req.Player))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
