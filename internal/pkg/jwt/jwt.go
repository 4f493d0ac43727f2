package jwt

import (
	"errors"
	"time"

	"github.com/go-chi/jwtauth/v5"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Service issues and validates device access tokens. The tracker has no
// accounts; a token binds a device to its derived user id.
type Service interface {
	GenerateDeviceToken(userID, deviceID string) (token string, expiresAt int64, err error)
	JWTAuth() *jwtauth.JWTAuth
}

type jwtService struct {
	secretKey  string
	expiration time.Duration
	tokenAuth  *jwtauth.JWTAuth
}

// NewJWTService builds the service. expiration is a time.Duration string
// such as "720h".
func NewJWTService(secretKey, expiration string) (Service, error) {
	d, err := time.ParseDuration(expiration)
	if err != nil {
		return nil, err
	}
	return &jwtService{
		secretKey:  secretKey,
		expiration: d,
		tokenAuth:  jwtauth.New("HS256", []byte(secretKey), nil, jwxjwt.WithAcceptableSkew(30*time.Second)),
	}, nil
}

func (j *jwtService) JWTAuth() *jwtauth.JWTAuth {
	return j.tokenAuth
}

func (j *jwtService) GenerateDeviceToken(userID, deviceID string) (string, int64, error) {
	expiresAt := time.Now().Add(j.expiration).Unix()
	claims := map[string]interface{}{
		"user_id":   userID,
		"device_id": deviceID,
		"type":      "device",
		"exp":       expiresAt,
	}
	_, token, err := j.tokenAuth.Encode(claims)
	if err != nil {
		return "", 0, err
	}
	return token, expiresAt, nil
}
