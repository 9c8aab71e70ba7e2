// Package seat issues and verifies the signed grants that let a remote
// client answer choices for one player of one game.
package seat

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/platform/id"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

// grantEnv holds raw env values before validation.
type grantEnv struct {
	Issuer    string `env:"RULECORE_ENGINE_SEAT_ISSUER"`
	Audience  string `env:"RULECORE_ENGINE_SEAT_AUDIENCE"`
	PublicKey string `env:"RULECORE_ENGINE_SEAT_PUBLIC_KEY"`
}

// Config defines how seat grants are verified.
type Config struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// Enabled reports whether a verifier is configured.
func (c Config) Enabled() bool {
	return c.Issuer != "" && c.Audience != "" && len(c.Key) == ed25519.PublicKeySize
}

// Claims are the validated contents of a grant.
type Claims struct {
	GameID    string
	Player    object.ID
	ExpiresAt time.Time
	JWTID     string
}

type grantClaims struct {
	jwt.RegisteredClaims
	GameID string    `json:"game_id"`
	Player object.ID `json:"player"`
}

// LoadConfigFromEnv reads verification settings. All three variables unset
// yields a disabled config; a partial set is an error.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw grantEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse seat grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if now == nil {
		now = time.Now
	}
	if issuer == "" && audience == "" && publicKey == "" {
		return Config{Now: now}, nil
	}
	if issuer == "" {
		return Config{}, fmt.Errorf("RULECORE_ENGINE_SEAT_ISSUER is required")
	}
	if audience == "" {
		return Config{}, fmt.Errorf("RULECORE_ENGINE_SEAT_AUDIENCE is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return Config{}, fmt.Errorf("decode seat public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return Config{}, fmt.Errorf("seat public key must be %d bytes", ed25519.PublicKeySize)
	}
	return Config{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// Validate verifies grant and checks it names gameID.
func Validate(grant string, gameID string, cfg Config) (Claims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return Claims{}, apperrors.New(apperrors.CodeSeatGrantInvalid, "seat grant is required")
	}
	if !cfg.Enabled() {
		return Claims{}, errors.New("seat grant verifier is not configured")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var parsed grantClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(*jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return Claims{}, mismatch("issuer")
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Claims{}, mismatch("audience")
	}
	if parsed.ID == "" {
		return Claims{}, apperrors.New(apperrors.CodeSeatGrantInvalid, "seat grant jti is required")
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeSeatGrantInvalid, "seat grant exp is required")
	}
	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Claims{}, apperrors.New(apperrors.CodeSeatGrantExpired, "seat grant is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return Claims{}, apperrors.New(apperrors.CodeSeatGrantInvalid, "seat grant not active yet")
	}
	if strings.TrimSpace(parsed.GameID) == "" || parsed.GameID != gameID {
		return Claims{}, mismatch("game_id")
	}
	if parsed.Player == 0 {
		return Claims{}, mismatch("player")
	}
	return Claims{
		GameID:    parsed.GameID,
		Player:    parsed.Player,
		ExpiresAt: exp,
		JWTID:     parsed.ID,
	}, nil
}

// Signer issues grants. Operators and tests use it; the engine only verifies.
type Signer struct {
	Issuer   string
	Audience string
	Key      ed25519.PrivateKey
	TTL      time.Duration
	Now      func() time.Time
}

// Issue signs a grant seating player in gameID.
func (s Signer) Issue(gameID string, player object.ID) (string, error) {
	if s.Issuer == "" || s.Audience == "" || len(s.Key) != ed25519.PrivateKeySize {
		return "", errors.New("seat grant signer is not configured")
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	jti, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate grant id: %w", err)
	}
	issued := now().UTC()
	claims := grantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Audience:  jwt.ClaimStrings{s.Audience},
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
		GameID: gameID,
		Player: player,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.Key)
	if err != nil {
		return "", fmt.Errorf("sign seat grant: %w", err)
	}
	return token, nil
}

func mismatch(field string) error {
	return apperrors.WithMetadata(apperrors.CodeSeatGrantMismatch, "seat grant "+field+" mismatch", map[string]string{
		"field": field,
	})
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeSeatGrantInvalid, "seat grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeSeatGrantInvalid, "seat grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeSeatGrantInvalid, "seat grant is invalid")
}

func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
