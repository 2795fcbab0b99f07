package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/wuwenbin0122/otpchat/internal/db"
	"github.com/wuwenbin0122/otpchat/internal/mail"
	"github.com/wuwenbin0122/otpchat/internal/models"
)

const (
	DefaultVerifyTTL  = 5 * time.Minute
	DefaultSessionTTL = 5 * 24 * time.Hour
	DefaultSubject    = "Your login code"

	otpUpperBound = 1_000_000

	audienceVerify  = "verify"
	audienceSession = "session"
)

var (
	ErrSecretRequired = errors.New("auth: activation and session secrets required")
	ErrEmailRequired  = errors.New("auth: a valid email is required")
	ErrTokenInvalid   = errors.New("auth: token invalid or expired")
	ErrOTPMismatch    = errors.New("auth: wrong verification code")
	ErrDelivery       = errors.New("auth: failed to deliver verification code")
)

// UserStore is the slice of the persistence layer the login flow needs.
type UserStore interface {
	UpsertUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type Options struct {
	ActivationSecret string
	SessionSecret    string
	VerifyTTL        time.Duration
	SessionTTL       time.Duration
	Subject          string
}

type Option func(*Service)

// WithClock replaces time.Now for token issuance and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithOTPGenerator replaces the random passcode source.
func WithOTPGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.generateOTP = gen }
}

type LoginResult struct {
	Message     string
	VerifyToken string
	ExpiresAt   time.Time
}

type VerifyResult struct {
	Message   string
	User      models.User
	Token     string
	ExpiresAt time.Time
}

// SessionClaims identify the caller on authenticated requests.
type SessionClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// verifyClaims carry the user captured at login and a bcrypt hash of the
// passcode, so the token payload never exposes the code itself.
type verifyClaims struct {
	User    models.User `json:"user"`
	OTPHash string      `json:"otp_hash"`
	jwt.RegisteredClaims
}

type Service struct {
	activationSecret []byte
	sessionSecret    []byte
	verifyTTL        time.Duration
	sessionTTL       time.Duration
	subject          string

	users  UserStore
	mailer mail.Mailer
	logger *zap.Logger

	now         func() time.Time
	generateOTP func() (string, error)
}

func NewService(opts Options, users UserStore, mailer mail.Mailer, logger *zap.Logger, extra ...Option) (*Service, error) {
	activation := strings.TrimSpace(opts.ActivationSecret)
	session := strings.TrimSpace(opts.SessionSecret)
	if activation == "" || session == "" {
		return nil, ErrSecretRequired
	}
	if users == nil || mailer == nil {
		return nil, errors.New("auth: user store and mailer are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		activationSecret: []byte(activation),
		sessionSecret:    []byte(session),
		verifyTTL:        opts.VerifyTTL,
		sessionTTL:       opts.SessionTTL,
		subject:          strings.TrimSpace(opts.Subject),
		users:            users,
		mailer:           mailer,
		logger:           logger.Named("auth"),
		now:              time.Now,
		generateOTP:      randomOTP,
	}
	if s.verifyTTL <= 0 {
		s.verifyTTL = DefaultVerifyTTL
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = DefaultSessionTTL
	}
	if s.subject == "" {
		s.subject = DefaultSubject
	}

	for _, opt := range extra {
		opt(s)
	}

	return s, nil
}

// Login finds or creates the user for email, mails a fresh passcode and
// returns the signed verification token that binds the two.
func (s *Service) Login(ctx context.Context, email string) (*LoginResult, error) {
	email = db.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrEmailRequired
	}

	user, err := s.users.UpsertUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("auth: upsert user: %w", err)
	}

	otp, err := s.generateOTP()
	if err != nil {
		return nil, fmt.Errorf("auth: generate otp: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(otp), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash otp: %w", err)
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.verifyTTL)
	claims := verifyClaims{
		User:    *user,
		OTPHash: string(hash),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{audienceVerify},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.activationSecret)
	if err != nil {
		return nil, fmt.Errorf("auth: sign verification token: %w", err)
	}

	if err := s.mailer.SendOTP(ctx, user.Email, s.subject, otp); err != nil {
		s.logger.Error("otp delivery failed", zap.String("email", user.Email), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	s.logger.Info("otp issued", zap.String("user_id", user.ID), zap.Time("expires_at", expiresAt))

	return &LoginResult{
		Message:     fmt.Sprintf("verification code sent to %s", user.Email),
		VerifyToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}

// Verify checks otp against the code bound into verifyToken and, on a match,
// issues a session token. The returned user is the snapshot taken at login.
func (s *Service) Verify(ctx context.Context, otp, verifyToken string) (*VerifyResult, error) {
	_ = ctx

	var claims verifyClaims
	if err := s.parse(verifyToken, &claims, s.activationSecret, audienceVerify); err != nil {
		return nil, err
	}

	err := bcrypt.CompareHashAndPassword([]byte(claims.OTPHash), []byte(strings.TrimSpace(otp)))
	switch {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return nil, ErrOTPMismatch
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	token, expiresAt, err := s.issueSession(claims.User.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user verified", zap.String("user_id", claims.User.ID))

	return &VerifyResult{
		Message:   "login successful",
		User:      claims.User,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// ParseSession validates a session token and returns its claims.
func (s *Service) ParseSession(token string) (*SessionClaims, error) {
	var claims SessionClaims
	if err := s.parse(token, &claims, s.sessionSecret, audienceSession); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

func (s *Service) issueSession(userID string) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.sessionTTL)
	claims := SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audienceSession},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.sessionSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign session token: %w", err)
	}

	return signed, expiresAt, nil
}

func (s *Service) parse(token string, claims jwt.Claims, secret []byte, audience string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenInvalid
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}

	return nil
}

// randomOTP draws uniformly from [0, 1_000_000). Codes are not zero padded,
// so "42" is a valid passcode.
func randomOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpUpperBound))
	if err != nil {
		return "", err
	}
	return n.String(), nil
}
