// Package account registers users and logs them in on top of the
// persistence API.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/feedstore/internal/model"
	"github.com/roach88/feedstore/internal/store"
)

// ErrInvalidCredentials is returned by Login when no user matches.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrEmailTaken is returned by Register for an email already in use.
var ErrEmailTaken = errors.New("email already registered")

// Users is the subset of the persistence API accounts need.
type Users interface {
	CreateUser(ctx context.Context, name, email, credential string) (int64, error)
	AuthenticateUser(ctx context.Context, email, credential string) (model.User, bool, error)
	GetUserByID(ctx context.Context, id int64) (model.User, bool, error)
}

// RegisterRequest holds registration input.
type RegisterRequest struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,simple_email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// LoginRequest holds login input.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// emailPattern accepts anything shaped like local@domain.tld.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError reports the first invalid field of a request.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

// Service implements registration and login.
type Service struct {
	users    Users
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService returns a Service over users.
func NewService(users Users, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.RegisterValidation("simple_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("account: register simple_email validation: %v", err))
	}
	return &Service{
		users:    users,
		validate: v,
		logger:   logger.With("component", "account"),
	}
}

// Register validates req, hashes the password and creates the user.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (int64, error) {
	if err := s.check(req); err != nil {
		return 0, err
	}

	id, err := s.users.CreateUser(ctx, req.Name, req.Email, HashPassword(req.Password))
	if store.IsConstraintViolation(err) {
		return 0, fmt.Errorf("%w: %s", ErrEmailTaken, req.Email)
	}
	if err != nil {
		return 0, fmt.Errorf("register: %w", err)
	}

	s.logger.Info("user registered", "id", id)
	return id, nil
}

// Login returns the user matching req. The returned user has no
// credential.
func (s *Service) Login(ctx context.Context, req LoginRequest) (model.User, error) {
	if err := s.check(req); err != nil {
		return model.User{}, err
	}

	u, found, err := s.users.AuthenticateUser(ctx, req.Email, HashPassword(req.Password))
	if err != nil {
		return model.User{}, fmt.Errorf("login: %w", err)
	}
	if !found {
		return model.User{}, ErrInvalidCredentials
	}

	u.Credential = ""
	s.logger.Debug("user logged in", "id", u.ID)
	return u, nil
}

func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate: %w", err)
	}

	// Problems are reported in a fixed order: missing fields, then
	// password mismatch, then password length, then email shape.
	for _, tag := range []string{"required", "eqfield", "min", "simple_email"} {
		for _, fe := range verrs {
			if fe.Tag() == tag {
				return &ValidationError{Field: fe.Field(), Message: messageFor(fe), Err: err}
			}
		}
	}

	fe := verrs[0]
	return &ValidationError{Field: fe.Field(), Message: messageFor(fe), Err: err}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "please fill in all fields"
	case "eqfield":
		return "passwords do not match"
	case "min":
		return fmt.Sprintf("password must be at least %s characters long", fe.Param())
	case "simple_email":
		return "please enter a valid email address"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
