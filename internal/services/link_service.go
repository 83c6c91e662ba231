package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/osnovci/internal/auth"
	"github.com/BradenHooton/osnovci/internal/metrics"
	"github.com/BradenHooton/osnovci/internal/models"
	pkglogger "github.com/BradenHooton/osnovci/pkg/logger"
)

const (
	linkCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	linkCodeLength   = 10
	linkCodeAttempts = 3

	verificationTokenBytes = 32
)

// LinkRequestStore persists link requests. State changes are conditional on
// the current status and return ErrConflict when the status has moved on.
type LinkRequestStore interface {
	Create(ctx context.Context, req *models.LinkRequest) (*models.LinkRequest, error)
	GetByCode(ctx context.Context, linkCode string) (*models.LinkRequest, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.LinkRequest, error)
	GetOpenForPair(ctx context.Context, guardianID, studentID string, now time.Time) (*models.LinkRequest, error)
	ListPendingForStudent(ctx context.Context, studentID string, now time.Time) ([]*models.PendingLinkRequest, error)
	MarkChildApproved(ctx context.Context, id, tokenHash string, at time.Time) (*models.LinkRequest, error)
	MarkRejected(ctx context.Context, id string, at time.Time) (*models.LinkRequest, error)
	MarkExpired(ctx context.Context, id string, at time.Time) (bool, error)
	CompleteVerification(ctx context.Context, id string, permissions []string, at time.Time) (*models.ActiveLink, error)
	ExpireStale(ctx context.Context, now time.Time) ([]models.ExpiredLinkRequest, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// GuardianLinkStore persists active guardian-student links
type GuardianLinkStore interface {
	GetByID(ctx context.Context, id string) (*models.ActiveLink, error)
	GetActive(ctx context.Context, guardianID, studentID string) (*models.ActiveLink, error)
	ListForGuardian(ctx context.Context, guardianID string) ([]*models.LinkedAccount, error)
	ListForStudent(ctx context.Context, studentID string) ([]*models.LinkedAccount, error)
	Revoke(ctx context.Context, id, revokedBy string, at time.Time) (*models.ActiveLink, error)
}

// StudentLinkTokens issues and checks the signed payload in a student's QR code
type StudentLinkTokens interface {
	GenerateStudentLinkToken(studentID string) (string, time.Time, error)
	ValidateStudentLinkToken(token string) (string, error)
}

// GuardianVerificationMailer delivers the guardian's verification link
type GuardianVerificationMailer interface {
	SendGuardianVerificationEmail(ctx context.Context, to, studentName, verificationLink string, expiresAt time.Time) error
}

// LinkServiceConfig holds the link protocol settings
type LinkServiceConfig struct {
	CodeTTL             time.Duration
	VerificationURLBase string
	TerminalRetention   time.Duration
	QRSize              int
}

// LinkServiceDeps groups the collaborators of LinkService
type LinkServiceDeps struct {
	Requests LinkRequestStore
	Links    GuardianLinkStore
	Users    UserRepository
	Tokens   StudentLinkTokens
	Mailer   GuardianVerificationMailer
	Audit    *AuditService
}

// LinkSummary is what a guardian sees of a link request
type LinkSummary struct {
	LinkCode  string            `json:"link_code"`
	Status    models.LinkStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// StudentQR is the payload a student shows to a guardian
type StudentQR struct {
	Payload   string    `json:"payload"`
	ExpiresAt time.Time `json:"expires_at"`
	PNG       []byte    `json:"-"`
}

var errInvalidQR = models.NewValidationError("invalid or expired QR code")

// LinkService runs the guardian-student linking handshake. A link becomes
// active only after the student approves in the app and the guardian
// confirms through the emailed link.
type LinkService struct {
	requests LinkRequestStore
	links    GuardianLinkStore
	users    UserRepository
	tokens   StudentLinkTokens
	mailer   GuardianVerificationMailer
	audit    *AuditService
	cfg      LinkServiceConfig
	logger   *slog.Logger
	now      func() time.Time
	newCode  func() (string, error)
}

// NewLinkService creates a new LinkService
func NewLinkService(deps LinkServiceDeps, cfg LinkServiceConfig, logger *slog.Logger) *LinkService {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 24 * time.Hour
	}
	if cfg.TerminalRetention <= 0 {
		cfg.TerminalRetention = 30 * 24 * time.Hour
	}
	if cfg.QRSize <= 0 {
		cfg.QRSize = auth.DefaultQRSize
	}

	return &LinkService{
		requests: deps.Requests,
		links:    deps.Links,
		users:    deps.Users,
		tokens:   deps.Tokens,
		mailer:   deps.Mailer,
		audit:    deps.Audit,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newCode:  generateLinkCode,
	}
}

// IssueStudentQR returns a short-lived signed payload identifying the student
func (s *LinkService) IssueStudentQR(ctx context.Context, session *models.Session) (*StudentQR, error) {
	if !session.IsStudent() {
		return nil, models.ErrForbidden
	}

	payload, expiresAt, err := s.tokens.GenerateStudentLinkToken(session.UserID)
	if err != nil {
		s.logger.Error("failed to sign student QR payload", slog.String("user_id", session.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	png, err := auth.RenderQRPNG(payload, s.cfg.QRSize)
	if err != nil {
		s.logger.Error("failed to render student QR code", slog.String("user_id", session.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &StudentQR{Payload: payload, ExpiresAt: expiresAt, PNG: png}, nil
}

// InitiateLink starts a link request from a scanned QR payload. Scanning the
// same student again while a request is open returns that request.
func (s *LinkService) InitiateLink(ctx context.Context, qrData string, session *models.Session) (*LinkSummary, error) {
	if !session.IsGuardian() {
		return nil, models.ErrForbidden
	}

	guardian, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, s.internal(ctx, "failed to load guardian", err)
	}
	if guardian.Role != models.RoleGuardian || guardian.Status != models.StatusActive {
		return nil, models.ErrUnauthorized
	}

	studentID, err := s.tokens.ValidateStudentLinkToken(strings.TrimSpace(qrData))
	if err != nil {
		s.logger.Info("link initiation with invalid QR payload", slog.String("guardian_id", guardian.ID))
		return nil, errInvalidQR
	}

	// Unknown, disabled and non-student accounts all look like a bad QR code.
	student, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, errInvalidQR
		}
		return nil, s.internal(ctx, "failed to load student", err)
	}
	if student.Role != models.RoleStudent || student.Status != models.StatusActive {
		return nil, errInvalidQR
	}

	if _, err := s.links.GetActive(ctx, guardian.ID, student.ID); err == nil {
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, s.internal(ctx, "failed to check active link", err)
	}

	now := s.now().UTC()

	open, err := s.requests.GetOpenForPair(ctx, guardian.ID, student.ID, now)
	if err == nil {
		return summarize(open), nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, s.internal(ctx, "failed to check open link request", err)
	}

	req, err := s.createRequest(ctx, guardian.ID, student.ID, now)
	if err != nil {
		return nil, err
	}

	s.recordTransition(ctx, models.AuditEventTypeLinkInitiated, guardian.ID, req, "", models.LinkStatusInitiated)
	s.logger.Info("link request initiated",
		slog.String("link_request_id", req.ID),
		slog.String("guardian_id", guardian.ID))

	return summarize(req), nil
}

func (s *LinkService) createRequest(ctx context.Context, guardianID, studentID string, now time.Time) (*models.LinkRequest, error) {
	for attempt := 0; attempt < linkCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, s.internal(ctx, "failed to generate link code", err)
		}

		req, err := s.requests.Create(ctx, &models.LinkRequest{
			LinkCode:   code,
			StudentID:  studentID,
			GuardianID: guardianID,
			ExpiresAt:  now.Add(s.cfg.CodeTTL),
		})
		if err == nil {
			return req, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, s.internal(ctx, "failed to create link request", err)
		}

		s.logger.Warn("link code collision, retrying", slog.Int("attempt", attempt+1))
	}

	return nil, s.internal(ctx, "failed to create link request", errors.New("link code collisions exhausted"))
}

// ChildApproves records the student's consent and emails the guardian a
// one-time verification link. Checks run in order: unknown code, expiry,
// wrong student, status.
func (s *LinkService) ChildApproves(ctx context.Context, linkCode string, session *models.Session) (*LinkSummary, error) {
	req, err := s.pendingForStudent(ctx, linkCode, session)
	if err != nil {
		return nil, err
	}

	token, tokenHash, err := newVerificationToken()
	if err != nil {
		return nil, s.internal(ctx, "failed to generate verification token", err)
	}

	approved, err := s.requests.MarkChildApproved(ctx, req.ID, tokenHash, s.now().UTC())
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		return nil, s.internal(ctx, "failed to approve link request", err)
	}

	s.recordTransition(ctx, models.AuditEventTypeLinkChildApproved, session.UserID, approved, models.LinkStatusInitiated, models.LinkStatusChildApproved)
	s.sendGuardianVerification(ctx, approved, token)

	return summarize(approved), nil
}

// ChildRejects ends a request the student does not recognize
func (s *LinkService) ChildRejects(ctx context.Context, linkCode string, session *models.Session) (*LinkSummary, error) {
	req, err := s.pendingForStudent(ctx, linkCode, session)
	if err != nil {
		return nil, err
	}

	rejected, err := s.requests.MarkRejected(ctx, req.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		return nil, s.internal(ctx, "failed to reject link request", err)
	}

	s.recordTransition(ctx, models.AuditEventTypeLinkRejected, session.UserID, rejected, models.LinkStatusInitiated, models.LinkStatusRejected)

	return summarize(rejected), nil
}

func (s *LinkService) pendingForStudent(ctx context.Context, linkCode string, session *models.Session) (*models.LinkRequest, error) {
	if !session.IsStudent() {
		return nil, models.ErrForbidden
	}

	code := normalizeLinkCode(linkCode)
	if code == "" {
		return nil, models.ErrNotFound
	}

	req, err := s.requests.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, s.internal(ctx, "failed to load link request", err)
	}

	if req.IsExpired(s.now()) {
		s.expire(ctx, req)
		return nil, models.ErrLinkExpired
	}

	if req.StudentID != session.UserID {
		s.logger.Warn("link request acted on by another student",
			slog.String("link_request_id", req.ID),
			slog.String("user_id", session.UserID))
		return nil, models.ErrForbidden
	}

	if req.Status != models.LinkStatusInitiated {
		return nil, models.ErrConflict
	}

	return req, nil
}

// VerifyGuardian completes the handshake from the emailed link. Every
// failure looks the same to the caller.
func (s *LinkService) VerifyGuardian(ctx context.Context, token string) (*models.ActiveLink, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, models.ErrUnauthorized
	}

	req, err := s.requests.GetByTokenHash(ctx, hashVerificationToken(token))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("guardian verification with unknown token")
			return nil, models.ErrUnauthorized
		}
		return nil, s.internal(ctx, "failed to load link request by token", err)
	}

	if req.Status != models.LinkStatusChildApproved {
		return nil, models.ErrUnauthorized
	}

	now := s.now().UTC()
	if req.IsExpired(now) {
		s.expire(ctx, req)
		return nil, models.ErrUnauthorized
	}

	link, err := s.requests.CompleteVerification(ctx, req.ID, models.DefaultLinkPermissions(), now)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrUnauthorized
		}
		return nil, s.internal(ctx, "failed to complete guardian verification", err)
	}

	s.recordTransition(ctx, models.AuditEventTypeLinkGuardianVerified, req.GuardianID, req, models.LinkStatusChildApproved, models.LinkStatusGuardianVerified)
	s.logger.Info("guardian link activated",
		slog.String("link_id", link.ID),
		slog.String("guardian_id", link.GuardianID),
		slog.String("student_id", link.StudentID))

	return link, nil
}

// ListPendingForStudent returns the requests waiting for the student's decision
func (s *LinkService) ListPendingForStudent(ctx context.Context, session *models.Session) ([]*models.PendingLinkRequest, error) {
	if !session.IsStudent() {
		return nil, models.ErrForbidden
	}

	pending, err := s.requests.ListPendingForStudent(ctx, session.UserID, s.now().UTC())
	if err != nil {
		return nil, s.internal(ctx, "failed to list pending link requests", err)
	}

	for _, p := range pending {
		p.GuardianEmail = pkglogger.SanitizedEmail(p.GuardianEmail)
	}

	return pending, nil
}

// GetRequestStatus lets the guardian poll a request they created. Requests
// owned by someone else are reported as not found.
func (s *LinkService) GetRequestStatus(ctx context.Context, linkCode string, session *models.Session) (*LinkSummary, error) {
	if !session.IsGuardian() {
		return nil, models.ErrForbidden
	}

	req, err := s.requests.GetByCode(ctx, normalizeLinkCode(linkCode))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, s.internal(ctx, "failed to load link request", err)
	}

	if req.GuardianID != session.UserID {
		return nil, models.ErrNotFound
	}

	if !req.Status.IsTerminal() && req.IsExpired(s.now()) {
		s.expire(ctx, req)
		req.Status = models.LinkStatusExpired
	}

	return summarize(req), nil
}

// ListLinks returns the caller's active links: students for a guardian,
// guardians for a student
func (s *LinkService) ListLinks(ctx context.Context, session *models.Session) ([]*models.LinkedAccount, error) {
	var (
		accounts []*models.LinkedAccount
		err      error
	)

	switch {
	case session.IsGuardian():
		accounts, err = s.links.ListForGuardian(ctx, session.UserID)
	case session.IsStudent():
		accounts, err = s.links.ListForStudent(ctx, session.UserID)
	default:
		return nil, models.ErrForbidden
	}
	if err != nil {
		return nil, s.internal(ctx, "failed to list links", err)
	}

	return accounts, nil
}

// RevokeLink deactivates a link. Either party may revoke; anyone else gets NotFound.
func (s *LinkService) RevokeLink(ctx context.Context, linkID string, session *models.Session) error {
	if session == nil {
		return models.ErrUnauthorized
	}

	link, err := s.links.GetByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return s.internal(ctx, "failed to load link", err)
	}

	if link.GuardianID != session.UserID && link.StudentID != session.UserID {
		return models.ErrNotFound
	}
	if !link.IsActive {
		return models.ErrNotFound
	}

	revoked, err := s.links.Revoke(ctx, link.ID, session.UserID, s.now().UTC())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return s.internal(ctx, "failed to revoke link", err)
	}

	metrics.LinkTransitionsTotal.WithLabelValues("REVOKED").Inc()
	s.audit.LogLinkRevoked(ctx, session.UserID, revoked)

	return nil
}

// HasActiveLink reports whether guardianID holds an active link to studentID
func (s *LinkService) HasActiveLink(ctx context.Context, guardianID, studentID string) (bool, error) {
	_, err := s.links.GetActive(ctx, guardianID, studentID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check active link: %w", err)
}

// ExpireStale moves overdue pending requests to EXPIRED and prunes finished
// requests past the retention window
func (s *LinkService) ExpireStale(ctx context.Context) (int, int64, error) {
	now := s.now().UTC()

	expired, err := s.requests.ExpireStale(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to expire link requests: %w", err)
	}

	for _, e := range expired {
		s.recordTransition(ctx, models.AuditEventTypeLinkExpired, "", e.Request, e.PreviousStatus, models.LinkStatusExpired)
	}

	pruned, err := s.requests.DeleteTerminalBefore(ctx, now.Add(-s.cfg.TerminalRetention))
	if err != nil {
		return len(expired), 0, fmt.Errorf("failed to prune link requests: %w", err)
	}

	return len(expired), pruned, nil
}

// expire persists EXPIRED for a pending request found past its expiry
func (s *LinkService) expire(ctx context.Context, req *models.LinkRequest) {
	if req.Status.IsTerminal() {
		return
	}

	changed, err := s.requests.MarkExpired(ctx, req.ID, s.now().UTC())
	if err != nil {
		s.logger.Error("failed to mark link request expired",
			slog.String("link_request_id", req.ID),
			slog.Any("error", err))
		return
	}
	if changed {
		s.recordTransition(ctx, models.AuditEventTypeLinkExpired, "", req, req.Status, models.LinkStatusExpired)
	}
}

func (s *LinkService) sendGuardianVerification(ctx context.Context, req *models.LinkRequest, token string) {
	if s.mailer == nil {
		return
	}

	guardian, err := s.users.GetByID(ctx, req.GuardianID)
	if err != nil {
		s.logger.Error("failed to load guardian for verification email",
			slog.String("link_request_id", req.ID),
			slog.Any("error", err))
		return
	}

	studentName := "Your student"
	if student, err := s.users.GetByID(ctx, req.StudentID); err == nil {
		studentName = student.Name
	}

	if err := s.mailer.SendGuardianVerificationEmail(ctx, guardian.Email, studentName, s.verificationLink(token), req.ExpiresAt); err != nil {
		s.logger.Error("failed to send guardian verification email",
			slog.String("link_request_id", req.ID),
			slog.Any("error", err))
	}
}

func (s *LinkService) verificationLink(token string) string {
	return strings.TrimRight(s.cfg.VerificationURLBase, "/") + "/links/verify?token=" + url.QueryEscape(token)
}

func (s *LinkService) recordTransition(ctx context.Context, eventType, actorID string, req *models.LinkRequest, from, to models.LinkStatus) {
	metrics.LinkTransitionsTotal.WithLabelValues(string(to)).Inc()
	s.audit.LogLinkEvent(ctx, eventType, actorID, req, from, to)
}

func (s *LinkService) internal(ctx context.Context, msg string, err error) error {
	s.logger.ErrorContext(ctx, msg, slog.Any("error", err))
	return models.ErrInternalServer
}

func summarize(req *models.LinkRequest) *LinkSummary {
	return &LinkSummary{
		LinkCode:  req.LinkCode,
		Status:    req.Status,
		ExpiresAt: req.ExpiresAt,
	}
}

func normalizeLinkCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// generateLinkCode draws from an alphabet of 32 symbols, so masking a random
// byte to 5 bits is unbiased
func generateLinkCode() (string, error) {
	buf := make([]byte, linkCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	code := make([]byte, linkCodeLength)
	for i, b := range buf {
		code[i] = linkCodeAlphabet[b&31]
	}
	return string(code), nil
}

// newVerificationToken returns the token for the email and the hash to store
func newVerificationToken() (string, string, error) {
	buf := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}

	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, hashVerificationToken(token), nil
}

func hashVerificationToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
