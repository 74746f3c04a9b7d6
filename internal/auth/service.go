package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour

	kindAccess  = "access"
	kindRefresh = "refresh"
)

// Service authenticates the single operator account configured at startup.
// Tokens are stateless; a refresh token is just a longer-lived signed claim.
type Service struct {
	secret       []byte
	username     string
	passwordHash []byte
}

type Claims struct {
	Operator string `json:"operator"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

func NewService(secret, username, password string) (*Service, error) {
	hash, err := hashPasswordFn([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Service{
		secret:       []byte(secret),
		username:     username,
		passwordHash: hash,
	}, nil
}

func (s *Service) Login(req LoginRequest) (TokenResponse, error) {
	if req.Username != s.username {
		return TokenResponse{}, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(req.Password)); err != nil {
		return TokenResponse{}, errors.New("invalid credentials")
	}
	return s.GenerateTokens(req.Username)
}

func (s *Service) GenerateTokens(operator string) (TokenResponse, error) {
	access, err := signTokenFn(s, operator, kindAccess, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := signTokenFn(s, operator, kindRefresh, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) ValidateRefreshToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	if claims.Kind != kindRefresh {
		return "", errors.New("refresh token invalid")
	}
	return claims.Operator, nil
}

func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	if claims.Kind != kindAccess {
		return "", errors.New("token invalid")
	}
	return claims.Operator, nil
}

var (
	hashPasswordFn = bcrypt.GenerateFromPassword
	signTokenFn    = (*Service).signTokenImpl
)

func (s *Service) signTokenImpl(operator, kind string, ttl time.Duration) (string, error) {
	claims := Claims{
		Operator: operator,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

var parseWithClaimsFn = jwt.ParseWithClaims

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := parseWithClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}
