package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/otpless-auth/otpless/internal/identity"
	"github.com/otpless-auth/otpless/internal/logging"
	"github.com/otpless-auth/otpless/internal/notification"
	"github.com/otpless-auth/otpless/internal/relay"
	"github.com/otpless-auth/otpless/internal/verification"
)

// Deliverer forwards issued credentials to clients waiting on a session.
type Deliverer interface {
	Deliver(sessionID string, ev relay.Event) int
}

// Deps aggregates the collaborators of the login orchestrator.
type Deps struct {
	AppName  string
	Users    *identity.Service
	Tokens   *verification.Store
	Issuer   *Issuer
	Notifier notification.Notifier
	Relay    Deliverer
	Attempts AttemptTracker
	Logger   *slog.Logger
}

// Service drives a login attempt from initiation to credential delivery.
type Service struct {
	appName  string
	users    *identity.Service
	tokens   *verification.Store
	issuer   *Issuer
	notifier notification.Notifier
	relay    Deliverer
	attempts AttemptTracker
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the orchestrator.
func NewService(d Deps) *Service {
	return &Service{
		appName:  d.AppName,
		users:    d.Users,
		tokens:   d.Tokens,
		issuer:   d.Issuer,
		notifier: d.Notifier,
		relay:    d.Relay,
		attempts: d.Attempts,
		logger:   d.Logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source used to decode payloads. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// InitiateResult is returned to the caller that started a login attempt.
type InitiateResult struct {
	SessionID string
	IsNewUser bool
}

// Credentials is the outcome of a successful confirmation.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	SessionID    string
}

// Initiate starts a login attempt for phone and sends the confirmation. The
// user record is not created here; that waits for the confirmation.
func (s *Service) Initiate(ctx context.Context, rawPhone string) (InitiateResult, error) {
	phone, err := identity.NormalizePhone(rawPhone)
	if err != nil {
		return InitiateResult{}, ErrInvalidPhone
	}

	isNewUser := false
	if _, err := s.users.FindByPhone(ctx, phone); errors.Is(err, identity.ErrUserNotFound) {
		isNewUser = true
	} else if err != nil {
		return InitiateResult{}, fmt.Errorf("lookup user: %w", err)
	}

	sessionID := uuid.NewString()
	s.track(ctx, sessionID, StateInitiated)

	issued, err := s.tokens.CreateToken(ctx, phone, isNewUser, sessionID)
	if err != nil {
		s.track(ctx, sessionID, StateFailed)
		return InitiateResult{}, fmt.Errorf("create verification token: %w", err)
	}
	payload, err := verification.Encode(issued.Payload(phone, isNewUser, sessionID))
	if err != nil {
		s.track(ctx, sessionID, StateFailed)
		return InitiateResult{}, err
	}

	msg := notification.NewConfirmation(s.appName, phone, payload, isNewUser)
	if err := s.notifier.SendConfirmation(ctx, msg); err != nil {
		s.track(ctx, sessionID, StateFailed)
		s.logger.Error("send confirmation",
			slog.String("session_id", sessionID),
			slog.String("phone", logging.MaskPhone(phone)),
			slog.Any("error", err),
		)
		return InitiateResult{}, ErrNotifyFailed
	}

	s.track(ctx, sessionID, StateNotified)
	s.logger.Info("login initiated",
		slog.String("session_id", sessionID),
		slog.String("phone", logging.MaskPhone(phone)),
		slog.Bool("new_user", isNewUser),
	)
	return InitiateResult{SessionID: sessionID, IsNewUser: isNewUser}, nil
}

// Confirm handles the out-of-band tap on a confirmation button. phone is the
// sender reported by the messaging channel. Any rejection is ErrInvalidToken.
func (s *Service) Confirm(ctx context.Context, rawPhone, encoded string) (Credentials, error) {
	phone, err := identity.NormalizePhone(rawPhone)
	if err != nil {
		return Credentials{}, ErrInvalidToken
	}
	payload, err := verification.Decode(encoded, s.now())
	if err != nil || payload.Phone != phone {
		return Credentials{}, ErrInvalidToken
	}

	verdict, err := s.tokens.Consume(ctx, payload)
	if err != nil {
		return Credentials{}, tokenError(err)
	}

	user, err := s.resolveUser(ctx, phone, verdict.IsNewUser, verdict.SessionID)
	if err != nil {
		return Credentials{}, err
	}

	pair, err := s.issuer.IssueRefreshPair(ctx, user.ID)
	if err != nil {
		return Credentials{}, err
	}
	s.track(ctx, verdict.SessionID, StateConfirmed)

	creds := Credentials{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, UserID: user.ID, SessionID: verdict.SessionID}
	delivered := s.relay.Deliver(verdict.SessionID, relay.Event{
		Event:        relay.EventAuthSuccess,
		AuthToken:    creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		UserID:       creds.UserID,
	})
	if delivered > 0 {
		s.track(ctx, verdict.SessionID, StateDelivered)
	}

	s.logger.Info("login confirmed",
		slog.String("session_id", verdict.SessionID),
		slog.String("user_id", user.ID),
		slog.Int("delivered", delivered),
	)
	return creds, nil
}

// resolveUser decides new vs existing from the store at confirmation time.
// The token's flag is only compared against it.
func (s *Service) resolveUser(ctx context.Context, phone string, hintNew bool, sessionID string) (identity.User, error) {
	user, err := s.users.FindByPhone(ctx, phone)
	switch {
	case err == nil:
		if hintNew {
			s.logger.Warn("token marked new user but account exists", slog.String("session_id", sessionID))
		}
		if err := s.users.TouchLogin(ctx, user.ID); err != nil {
			return identity.User{}, fmt.Errorf("touch login: %w", err)
		}
		return user, nil
	case errors.Is(err, identity.ErrUserNotFound):
		if !hintNew {
			s.logger.Warn("user missing at confirmation, creating", slog.String("session_id", sessionID))
		}
		created, err := s.users.Create(ctx, phone, nil)
		if errors.Is(err, identity.ErrUserExists) {
			// Lost a race with a concurrent confirmation for the same number.
			return s.users.FindByPhone(ctx, phone)
		}
		if err != nil {
			return identity.User{}, fmt.Errorf("create user: %w", err)
		}
		return created, nil
	default:
		return identity.User{}, fmt.Errorf("lookup user: %w", err)
	}
}

// ValidateAccess verifies an access token and that its user still exists.
func (s *Service) ValidateAccess(ctx context.Context, token string) (identity.User, error) {
	userID, err := s.issuer.VerifyAccess(token)
	if err != nil {
		return identity.User{}, ErrUnauthorized
	}
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return identity.User{}, ErrUnauthorized
	}
	if err != nil {
		return identity.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// Refresh rotates a refresh credential.
func (s *Service) Refresh(ctx context.Context, refreshToken, userID string) (TokenPair, error) {
	return s.issuer.RotateRefresh(ctx, refreshToken, userID)
}

// Logout revokes one refresh credential, or all of the user's credentials
// when refreshToken is empty.
func (s *Service) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken != "" {
		if err := s.tokens.RevokeByToken(ctx, refreshToken, userID); err != nil {
			return fmt.Errorf("revoke refresh credential: %w", err)
		}
		return nil
	}
	n, err := s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke refresh credentials: %w", err)
	}
	s.logger.Info("logged out everywhere", slog.String("user_id", userID), slog.Int("revoked", n))
	return nil
}

// Status reports the state of a login attempt.
func (s *Service) Status(ctx context.Context, sessionID string) (AttemptState, error) {
	return s.attempts.State(ctx, sessionID)
}

func (s *Service) track(ctx context.Context, sessionID string, to AttemptState) {
	if err := s.attempts.Transition(ctx, sessionID, to); err != nil {
		s.logger.Warn("attempt state not recorded",
			slog.String("session_id", sessionID),
			slog.String("state", string(to)),
			slog.Any("error", err),
		)
	}
}

func tokenError(err error) error {
	if errors.Is(err, verification.ErrTokenInvalid) {
		return ErrInvalidToken
	}
	return fmt.Errorf("verification store: %w", err)
}
