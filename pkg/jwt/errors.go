package jwt

import "errors"

var (
	ErrInvalidToken            = errors.New("jwt: invalid token")
	ErrExpiredToken            = errors.New("jwt: token is expired")
	ErrMissingSigningKey       = errors.New("jwt: missing signing key")
	ErrMissingClaims           = errors.New("jwt: missing claims")
	ErrInvalidSignature        = errors.New("jwt: invalid signature")
	ErrUnexpectedSigningMethod = errors.New("jwt: unexpected signing method")
	ErrInvalidIssuer           = errors.New("jwt: unexpected issuer")
	ErrInvalidAudience         = errors.New("jwt: unexpected audience")
	ErrInvalidSubject          = errors.New("jwt: subject is not a user id")
	ErrMissingToken            = errors.New("jwt: missing bearer token")
)
