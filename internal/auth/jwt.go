package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Validator checks access tokens issued by the auth service and returns
// the user id they carry.
type Validator struct {
	alg    string
	secret []byte
	pub    *rsa.PublicKey
}

func NewHMACValidator(secret string) *Validator {
	return &Validator{alg: "HS256", secret: []byte(secret)}
}

func NewRSAValidator(path string) (*Validator, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pub, err := ParseRSAPublicKey(b)
	if err != nil {
		return nil, err
	}
	return &Validator{alg: "RS256", pub: pub}, nil
}

// NewValidator picks the verifier for alg ("HS256" or "RS256").
func NewValidator(alg, secret, publicKeyPath string) (*Validator, error) {
	switch strings.ToUpper(alg) {
	case "HS256":
		return NewHMACValidator(secret), nil
	case "RS256":
		return NewRSAValidator(publicKeyPath)
	}
	return nil, fmt.Errorf("unsupported jwt alg %q", alg)
}

func ParseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("failed to decode public key")
	}
	pubIfc, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := pubIfc.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not rsa public key")
	}
	return pub, nil
}

func (v *Validator) keyFunc(*jwt.Token) (interface{}, error) {
	if v.alg == "RS256" {
		return v.pub, nil
	}
	return v.secret, nil
}

func (v *Validator) Validate(tokenStr string) (string, error) {
	tok, err := jwt.Parse(tokenStr, v.keyFunc, jwt.WithValidMethods([]string{v.alg}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims, ok := tok.Claims.(jwt.MapClaims); ok && tok.Valid {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub, nil
		}
		if userID, ok := claims["user_id"].(string); ok && userID != "" {
			return userID, nil
		}
	}
	return "", ErrInvalidToken
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header empty")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}
