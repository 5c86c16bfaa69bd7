package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"
	apperrors "catalogsync/pkg/errors"
	"catalogsync/pkg/logger"
	"catalogsync/pkg/utils"
	"catalogsync/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the parts of the backend token the client reads. The signature is
// never checked here; the backend remains the authority.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// DecodeClaims reads token claims without verifying the signature.
func DecodeClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

type loginResult struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type AuthService struct {
	gateway  ports.Gateway
	sessions *SessionService
	notifier ports.Notifier
	logger   *zap.SugaredLogger
}

func NewAuthService(gateway ports.Gateway, sessions *SessionService, notifier ports.Notifier, log *zap.SugaredLogger) *AuthService {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthService{
		gateway:  gateway,
		sessions: sessions,
		notifier: notifier,
		logger:   log,
	}
}

// Login validates the form locally, then signs in. Validation failures come back as a
// VALIDATION_ERROR carrying per-field messages and are never pushed as notifications.
func (s *AuthService) Login(ctx context.Context, form validation.LoginForm) (*domain.Session, error) {
	form.Email = utils.NormalizeEmail(form.Email)
	if fields := validation.ValidateStruct(form); fields != nil {
		return nil, apperrors.NewValidationError(fields)
	}

	env, err := s.gateway.Call(ctx, ports.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/login",
		Body:   form,
		Auth:   ports.AuthNone,
	})
	if err != nil {
		s.notifyError(err, "Login failed")
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	res, err := ports.Decode[loginResult](env)
	if err != nil {
		s.notifyError(err, "Login failed")
		return nil, err
	}
	if res.Token == "" {
		err := apperrors.NewAppError(apperrors.ErrCodeServer, "login response carried no token", http.StatusOK)
		s.notifyError(err, "Login failed")
		return nil, err
	}
	if res.User.Email == "" {
		res.User.Email = form.Email
	}

	sess, err := s.sessions.SignIn(ctx, res.Token, res.User)
	if err != nil {
		s.notifyError(err, "Login failed")
		return nil, err
	}

	s.push(domain.SeveritySuccess, fmt.Sprintf("Welcome back, %s", displayName(sess.User)), "")
	return sess, nil
}

// Register creates an account. It does not sign in.
func (s *AuthService) Register(ctx context.Context, form validation.RegisterForm) (*domain.User, error) {
	form.Email = utils.NormalizeEmail(form.Email)
	if fields := validation.ValidateStruct(form); fields != nil {
		return nil, apperrors.NewValidationError(fields)
	}

	env, err := s.gateway.Call(ctx, ports.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/register",
		Body: map[string]string{
			"username": form.Username,
			"email":    form.Email,
			"password": form.Password,
		},
		Auth: ports.AuthNone,
	})
	if err != nil {
		s.notifyError(err, "Registration failed")
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	user, err := ports.Decode[domain.User](env)
	if err != nil {
		s.notifyError(err, "Registration failed")
		return nil, err
	}

	s.push(domain.SeveritySuccess, "Registration successful, you can now log in", "/login")
	return &user, nil
}

// Logout tells the backend (best effort, for cookie sessions) and always clears the local session.
func (s *AuthService) Logout(ctx context.Context) error {
	if sess, _ := s.sessions.Current(); sess == nil {
		return nil
	}

	if _, err := s.gateway.Call(ctx, ports.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/logout",
	}); err != nil && !apperrors.IsAuthExpired(err) {
		s.logger.Warnw("backend logout failed", "error", err)
	}

	if err := s.sessions.SignOut(ctx); err != nil {
		return err
	}
	s.push(domain.SeveritySuccess, "You have been signed out", "")
	return nil
}

func (s *AuthService) notifyError(err error, fallback string) {
	if apperrors.IsAuthExpired(err) {
		return
	}
	s.logger.Warnw("auth request failed", "error", err)
	s.push(domain.SeverityError, apperrors.UserMessage(err, fallback), "")
}

func (s *AuthService) push(sev domain.Severity, msg, link string) {
	if s.notifier != nil {
		s.notifier.Push(sev, msg, link)
	}
}

func displayName(u domain.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}
