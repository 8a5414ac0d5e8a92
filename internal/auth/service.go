package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/logger"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
)

// Recorder receives auth outcomes for metrics.
type Recorder interface {
	LoginAttempt(outcome string)
	TokenVerified(kind TokenKind, outcome string)
	TokenIssued(kind TokenKind)
}

type nopRecorder struct{}

func (nopRecorder) LoginAttempt(string) {}
func (nopRecorder) TokenVerified(TokenKind, string) {}
func (nopRecorder) TokenIssued(TokenKind) {}

// Outcome labels passed to Recorder.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeError              = "error"
	OutcomeExpired            = "expired"
	OutcomeMalformed          = "malformed"
	OutcomeWrongKind          = "wrong_kind"
)

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Identity     models.Identity
}

// Service is the facade the HTTP layer talks to. It holds no mutable state of its own.
type Service struct {
	store    storage.Store
	hasher   *CredentialHasher
	tokens   *TokenService
	resolver *IdentityResolver
	guard    *UniquenessGuard
	classes  *ClassMembershipValidator
	rec      Recorder

	// dummyHash is verified against when the email is unknown so both failure paths cost a bcrypt compare.
	dummyHash string
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithRecorder reports outcomes to rec.
func WithRecorder(rec Recorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.rec = rec
		}
	}
}

// NewService wires the auth components over store.
func NewService(store storage.Store, hasher *CredentialHasher, tokens *TokenService, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		resolver: NewIdentityResolver(store),
		guard:    NewUniquenessGuard(store),
		classes:  NewClassMembershipValidator(store),
		rec:      nopRecorder{},
	}
	s.dummyHash, _ = hasher.Hash("not-a-real-password")
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login exchanges credentials for a token pair. Unknown emails and wrong passwords
// both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	log := logger.From(ctx)
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		s.rec.LoginAttempt(OutcomeInvalidCredentials)
		return TokenPair{}, ErrInvalidCredentials
	}

	rec, err := s.resolver.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.hasher.Verify(password, s.dummyHash)
		log.Info("login rejected", logger.Email(email), zap.String("reason", "unknown email"))
		s.rec.LoginAttempt(OutcomeInvalidCredentials)
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		s.rec.LoginAttempt(OutcomeError)
		return TokenPair{}, err
	}

	id, err := Classify(rec.Doc)
	if err != nil {
		s.hasher.Verify(password, s.dummyHash)
		log.Warn("login rejected", logger.Email(email), zap.String("collection", rec.Collection), zap.Error(err))
		s.rec.LoginAttempt(OutcomeInvalidCredentials)
		return TokenPair{}, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, id.PasswordHash) {
		log.Info("login rejected", logger.Email(email), zap.String("reason", "password mismatch"))
		s.rec.LoginAttempt(OutcomeInvalidCredentials)
		return TokenPair{}, ErrInvalidCredentials
	}

	if s.hasher.NeedsUpgrade(id.PasswordHash) {
		s.upgradeHash(ctx, rec.Collection, id, password)
	}

	access, err := s.tokens.IssueAccess(id)
	if err != nil {
		s.rec.LoginAttempt(OutcomeError)
		return TokenPair{}, err
	}
	refresh, err := s.tokens.IssueRefresh(id)
	if err != nil {
		s.rec.LoginAttempt(OutcomeError)
		return TokenPair{}, err
	}
	s.rec.TokenIssued(KindAccess)
	s.rec.TokenIssued(KindRefresh)
	s.rec.LoginAttempt(OutcomeSuccess)
	return TokenPair{AccessToken: access, RefreshToken: refresh, Identity: id}, nil
}

// upgradeHash rehashes a legacy or weak hash. Failure leaves the old hash in place.
func (s *Service) upgradeHash(ctx context.Context, collection string, id models.Identity, password string) {
	log := logger.From(ctx).With(logger.SubjectID(id.ID))
	hash, err := s.hasher.Hash(password)
	if err != nil {
		log.Warn("password rehash failed", zap.Error(err))
		return
	}
	_, err = s.store.Collection(collection).UpdateOne(ctx,
		storage.Filter{models.FieldID: id.ID},
		storage.Document{models.FieldPassword: hash},
		false,
	)
	if err != nil {
		log.Warn("password rehash not stored", zap.Error(err))
		return
	}
	log.Info("password hash upgraded")
}

// Authorize verifies an access token.
func (s *Service) Authorize(token string) (*Claims, error) {
	return s.verify(token, KindAccess)
}

// RefreshAccess issues a new access token for the subject of a refresh token. The identity
// is resolved again so role and email changes since the refresh token was issued are picked up.
func (s *Service) RefreshAccess(ctx context.Context, token string) (string, error) {
	claims, err := s.verify(token, KindRefresh)
	if err != nil {
		return "", err
	}
	rec, err := s.resolver.FindByID(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return "", oops.Code("AUTH_SUBJECT_GONE").With("subject_id", claims.Subject).Wrapf(ErrUnauthorized, "subject no longer exists")
	}
	if err != nil {
		return "", err
	}
	id, err := Classify(rec.Doc)
	if err != nil {
		return "", oops.Code("AUTH_SUBJECT_GONE").With("subject_id", claims.Subject).Wrapf(ErrUnauthorized, "subject record unusable: %v", err)
	}
	access, err := s.tokens.IssueAccess(id)
	if err != nil {
		return "", err
	}
	s.rec.TokenIssued(KindAccess)
	return access, nil
}

func (s *Service) verify(token string, kind TokenKind) (*Claims, error) {
	claims, err := s.tokens.Verify(token)
	switch {
	case errors.Is(err, ErrExpired):
		s.rec.TokenVerified(kind, OutcomeExpired)
		return nil, err
	case err != nil:
		s.rec.TokenVerified(kind, OutcomeMalformed)
		return nil, err
	case claims.Kind != kind:
		s.rec.TokenVerified(kind, OutcomeWrongKind)
		return nil, oops.Code("AUTH_WRONG_TOKEN_KIND").Wrapf(ErrUnauthorized, "expected %s token, got %s", kind, claims.Kind)
	}
	s.rec.TokenVerified(kind, OutcomeSuccess)
	return claims, nil
}

// ValidateClassCode reports whether a learning path carries code.
func (s *Service) ValidateClassCode(ctx context.Context, code string) error {
	return s.classes.Validate(ctx, code)
}

// AssignClassCode sets the class of the student named by email or id.
func (s *Service) AssignClassCode(ctx context.Context, subject, code string) error {
	subject = strings.TrimSpace(subject)
	students := s.store.Collection(models.CollectionStudents)
	doc, err := students.FindOne(ctx, storage.Filter{models.FieldEmail: subject})
	if errors.Is(err, storage.ErrNotFound) {
		doc, err = students.FindOne(ctx, storage.Filter{models.FieldID: subject})
	}
	if errors.Is(err, storage.ErrNotFound) {
		return oops.Code("AUTH_STUDENT_NOT_FOUND").With("subject", subject).Wrapf(ErrNotFound, "student %s", subject)
	}
	if err != nil {
		return oops.Code("STORE_QUERY_FAILED").Wrapf(err, "find student")
	}
	return s.classes.AssignClass(ctx, doc.ID(), code)
}
