package services

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/thereayou/accounts/internal/apierror"
	"github.com/thereayou/accounts/internal/config"
	"github.com/thereayou/accounts/internal/metrics"
	"github.com/thereayou/accounts/internal/models"
	"github.com/thereayou/accounts/pkg/auth"
)

// Dependencies are the collaborators of Service. Denylist, Notifier and
// Metrics may be nil.
type Dependencies struct {
	Store    UserStore
	Hasher   Hasher
	Tokens   TokenIssuer
	Uploader MediaUploader
	Denylist Denylist
	Notifier Notifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Service implements AuthService and AccountService.
type Service struct {
	store    UserStore
	hasher   Hasher
	tokens   TokenIssuer
	uploader MediaUploader
	denylist Denylist
	notifier Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger
	validate *validator.Validate

	passwordMinLength      int
	revokeOnPasswordChange bool
}

var (
	_ AuthService    = (*Service)(nil)
	_ AccountService = (*Service)(nil)
)

func NewService(cfg *config.Config, deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:                  deps.Store,
		hasher:                 deps.Hasher,
		tokens:                 deps.Tokens,
		uploader:               deps.Uploader,
		denylist:               deps.Denylist,
		notifier:               deps.Notifier,
		metrics:                deps.Metrics,
		log:                    log,
		validate:               validator.New(),
		passwordMinLength:      cfg.PasswordMinLength,
		revokeOnPasswordChange: cfg.RevokeSessionsOnPasswordChange,
	}
}

// checkPassword enforces the length policy. The minimum counts characters;
// the maximum counts bytes, which is what bcrypt limits.
func (s *Service) checkPassword(pw string) error {
	if utf8.RuneCountInString(pw) < s.passwordMinLength {
		return apierror.BadRequest(fmt.Sprintf("Password must be at least %d characters long", s.passwordMinLength), "password")
	}
	if len(pw) > auth.MaxPasswordBytes {
		return apierror.BadRequest(fmt.Sprintf("Password must be at most %d bytes long", auth.MaxPasswordBytes), "password")
	}
	return nil
}

// hashPassword maps an input the hasher refuses to BadRequest; anything else
// is Internal.
func (s *Service) hashPassword(pw string) (string, error) {
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) || errors.Is(err, auth.ErrEmptyPassword) {
			return "", apierror.BadRequest("Invalid password", "password")
		}
		return "", apierror.Internal("Failed to hash password", err)
	}
	return hash, nil
}

func (s *Service) checkEmail(email string) error {
	if err := s.validate.Var(email, "required,email"); err != nil {
		return apierror.BadRequest("Invalid email address", "email")
	}
	return nil
}

func (s *Service) revokeSession(userID uuid.UUID, reason string) {
	if s.notifier == nil {
		return
	}
	s.notifier.SessionRevoked(userID, reason)
}

func (s *Service) profileUpdated(user *models.User) {
	if s.notifier == nil {
		return
	}
	s.notifier.ProfileUpdated(user.ID, user)
}

func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apierror.KindOf(err).String()
}
