package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rohits-web03/esigned/internal/apperr"
	"github.com/rohits-web03/esigned/internal/config"
	"github.com/rohits-web03/esigned/internal/logging"
	"github.com/rohits-web03/esigned/internal/metrics"
	"github.com/rohits-web03/esigned/internal/models"
	"github.com/rohits-web03/esigned/internal/password"
	"github.com/rohits-web03/esigned/internal/ratelimit"
	"github.com/rohits-web03/esigned/internal/repositories"
	"github.com/rohits-web03/esigned/internal/utils"
)

const (
	activationCodeDigits = 6
	activationCodeTTL    = 24 * time.Hour
	minAdminPasswordLen  = 6
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	Save(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error)
	FindFirstByRole(ctx context.Context, role models.Role) (*models.User, error)
	Count(ctx context.Context) (int64, error)
}

// MailQueue accepts activation mail for background delivery.
type MailQueue interface {
	Enqueue(m ActivationMail) bool
}

// AttemptLimiter tracks failed activation attempts per email.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Fail(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

type AccountDeps struct {
	Users   UserStore
	Hasher  password.Hasher
	Tokens  *TokenIssuer
	Mailer  ActivationSender
	Queue   MailQueue
	Limiter AttemptLimiter
	Admin   config.AdminConfig
	Logger  *slog.Logger
}

// AccountService owns registration, activation and sessions.
type AccountService struct {
	users   UserStore
	hasher  password.Hasher
	tokens  *TokenIssuer
	mailer  ActivationSender
	queue   MailQueue
	limiter AttemptLimiter
	admin   config.AdminConfig
	logger  *slog.Logger

	now      func() time.Time
	newCode  func() (string, error)
	verifyPW func(plain, encoded string) (bool, error)
	// decoyHash is compared against on logins for unknown usernames.
	decoyHash func() string
}

func NewAccountService(d AccountDeps) *AccountService {
	s := &AccountService{
		users:    d.Users,
		hasher:   d.Hasher,
		tokens:   d.Tokens,
		mailer:   d.Mailer,
		queue:    d.Queue,
		limiter:  d.Limiter,
		admin:    d.Admin,
		logger:   d.Logger,
		now:      time.Now,
		newCode:  func() (string, error) { return utils.GenerateNumericCode(activationCodeDigits) },
		verifyPW: password.Verify,
	}
	if s.hasher == nil {
		s.hasher = password.Bcrypt{}
	}
	s.decoyHash = sync.OnceValue(func() string {
		h, _ := s.hasher.Hash("esigned-unknown-user")
		return h
	})
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.limiter == nil {
		s.limiter = (*ratelimit.AttemptLimiter)(nil)
	}
	return s
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type RegisterResult struct {
	RequiresActivation bool `json:"requiresActivation"`
	EmailSent          bool `json:"emailSent"`
}

// accountConflict is reported as 400 on the account routes.
func accountConflict(msg string) *apperr.Error {
	return apperr.Conflict(msg).WithStatus(http.StatusBadRequest)
}

func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, apperr.Validation("Username, email, and password are required")
	}

	existing, err := s.users.FindByUsernameOrEmail(ctx, in.Username, in.Email)
	switch {
	case err == nil:
		if existing.Username == in.Username {
			return nil, accountConflict("Username already exists")
		}
		return nil, accountConflict("Email already exists")
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, apperr.Internal("Registration failed").Wrap(err)
	}

	code, err := s.newCode()
	if err != nil {
		return nil, apperr.Internal("Registration failed").Wrap(err)
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: hash,
		Role:     models.RoleUser,
	}
	user.SetActivationCode(code, s.now().Add(activationCodeTTL))

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, accountConflict("Username or email already exists")
		}
		return nil, apperr.Internal("Registration failed").Wrap(err)
	}

	sent := s.queue != nil && s.queue.Enqueue(ActivationMail{To: user.Email, Username: user.Username, Code: code})
	if !sent {
		s.logger.Warn("activation email not queued", slog.String("user_id", user.ID.String()))
	}
	s.logger.Info("user registered", slog.String("user_id", user.ID.String()), slog.Bool("email_queued", sent))

	return &RegisterResult{RequiresActivation: true, EmailSent: sent}, nil
}

func (s *AccountService) Activate(ctx context.Context, email, code string) error {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return apperr.Validation("Email and activation code are required")
	}

	allowed, err := s.limiter.Allow(ctx, email)
	if err != nil {
		s.logger.Warn("activation limiter unavailable", logging.Err(err))
		allowed = true
	}
	if !allowed {
		return apperr.RateLimited("Too many activation attempts. Please try again later.")
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsActivated {
		return accountConflict("Account is already activated")
	}

	if user.ActivationCode == nil || subtle.ConstantTimeCompare([]byte(*user.ActivationCode), []byte(code)) != 1 {
		if _, err := s.limiter.Fail(ctx, email); err != nil {
			s.logger.Warn("failed to record activation attempt", logging.Err(err))
		}
		return apperr.Validation("Invalid activation code")
	}
	if user.ActivationCodeExpires != nil && s.now().After(*user.ActivationCodeExpires) {
		return apperr.Expired("Activation code has expired. Please request a new one.")
	}

	user.MarkActivated()
	if err := s.users.Save(ctx, user); err != nil {
		return apperr.Internal("Activation failed").Wrap(err)
	}
	if err := s.limiter.Reset(ctx, email); err != nil {
		s.logger.Warn("failed to reset activation attempts", logging.Err(err))
	}

	s.logger.Info("account activated", slog.String("user_id", user.ID.String()))
	return nil
}

// ResendCode replaces the pending code and mails it before returning.
func (s *AccountService) ResendCode(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.Validation("Email is required")
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsActivated {
		return accountConflict("Account is already activated")
	}

	code, err := s.newCode()
	if err != nil {
		return apperr.Internal("Failed to generate activation code").Wrap(err)
	}
	user.SetActivationCode(code, s.now().Add(activationCodeTTL))
	if err := s.users.Save(ctx, user); err != nil {
		return apperr.Internal("Failed to update activation code").Wrap(err)
	}

	err = s.mailer.SendActivation(ctx, ActivationMail{To: user.Email, Username: user.Username, Code: code})
	metrics.ActivationEmailsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		s.logger.Error("failed to resend activation email", slog.String("user_id", user.ID.String()), logging.Err(err))
		return apperr.Delivery("Failed to send activation email").Wrap(err)
	}
	return nil
}

func (s *AccountService) findByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load user").Wrap(err)
	}
	return user, nil
}

type UserSummary struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

type LoginResult struct {
	Token string      `json:"token"`
	User  UserSummary `json:"user"`
}

func (s *AccountService) Login(ctx context.Context, username, plain string) (*LoginResult, error) {
	if strings.TrimSpace(username) == "" || plain == "" {
		return nil, apperr.Validation("Username and password are required")
	}

	invalid := apperr.Auth("Invalid credentials")
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repositories.ErrNotFound) {
		// Spend the same hashing work as a real mismatch.
		_, _ = s.verifyPW(plain, s.decoyHash())
		return nil, invalid
	}
	if err != nil {
		return nil, apperr.Internal("Login failed").Wrap(err)
	}

	// Pending accounts get the activation hint whatever the password was.
	if !user.IsActivated {
		return nil, apperr.Auth("Account not activated. Please check your email for activation code.").
			WithDetail("requiresActivation", true).
			WithDetail("email", user.Email)
	}

	ok, err := s.verifyPW(plain, user.Password)
	if err != nil {
		s.logger.Warn("password verification error", slog.String("user_id", user.ID.String()), logging.Err(err))
	}
	if !ok {
		return nil, invalid
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, apperr.Internal("Failed to create token").Wrap(err)
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID.String()))
	return &LoginResult{
		Token: token,
		User:  UserSummary{ID: user.ID, Username: user.Username, Email: user.Email},
	}, nil
}

// Authenticate resolves a bearer token to the user id it was issued for.
func (s *AccountService) Authenticate(token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, apperr.Auth("No token")
	}
	id, err := s.tokens.Parse(token)
	if err != nil {
		return uuid.Nil, apperr.Auth("Invalid token").Wrap(err)
	}
	return id, nil
}

// Authorize loads the user and checks the capability.
func (s *AccountService) Authorize(ctx context.Context, userID uuid.UUID, c models.Capability) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperr.Auth("User not found")
	}
	if err != nil {
		return nil, apperr.Internal("Server error during admin verification").Wrap(err)
	}
	if !user.Can(c) {
		return nil, apperr.Forbidden("Admin access required. Only ADMIN users can perform this action.").
			WithType(apperr.TypeAdminRequired)
	}
	return user, nil
}

// AdminAuthorize is Authorize for the upload capability.
func (s *AccountService) AdminAuthorize(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.Authorize(ctx, userID, models.CapUploadDocuments)
}

// BootstrapAdmin creates the configured admin account when no users exist yet.
// It reports whether an account was created.
func (s *AccountService) BootstrapAdmin(ctx context.Context) (bool, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.logger.Info("users already exist, skipping admin creation", slog.Int64("users", n))
		return false, nil
	}

	hash, err := s.hasher.Hash(s.admin.Password)
	if err != nil {
		return false, err
	}
	admin := &models.User{
		Username:    s.admin.Username,
		Email:       s.admin.Email,
		Password:    hash,
		Role:        models.RoleAdmin,
		IsActivated: true,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return false, err
	}

	s.logger.Warn("default admin user created, change the admin password after first login",
		slog.String("username", admin.Username), slog.String("email", admin.Email))
	return true, nil
}

func (s *AccountService) UpdateAdminPassword(ctx context.Context, newPassword string) error {
	if newPassword == "" {
		return apperr.Validation("New password is required")
	}
	if len(newPassword) < minAdminPasswordLen {
		return apperr.Validation("Password must be at least 6 characters")
	}

	admin, err := s.users.FindFirstByRole(ctx, models.RoleAdmin)
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.NotFound("Admin user not found")
	}
	if err != nil {
		return apperr.Internal("Failed to load admin user").Wrap(err)
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	admin.Password = hash
	if err := s.users.Save(ctx, admin); err != nil {
		return apperr.Internal("Failed to update admin password").Wrap(err)
	}

	s.logger.Info("admin password updated", slog.String("user_id", admin.ID.String()))
	return nil
}

func (s *AccountService) hashPassword(plain string) (string, error) {
	hash, err := s.hasher.Hash(plain)
	if errors.Is(err, password.ErrTooLong) {
		return "", apperr.Validation("Password must be at most 72 bytes")
	}
	if err != nil {
		return "", apperr.Internal("Failed to hash password").Wrap(err)
	}
	return hash, nil
}
