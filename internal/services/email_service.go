package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/osnovci/internal/metrics"
	pkglogger "github.com/BradenHooton/osnovci/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailService defines the interface for sending emails
type EmailService interface {
	SendGuardianVerificationEmail(ctx context.Context, to, studentName, verificationLink string, expiresAt time.Time) error
	SendLockoutNotice(ctx context.Context, to string, lockedUntil time.Time) error
}

// SESAPI is the subset of the SES client used for sending
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   SESAPI
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewAWSSESEmailServiceWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

// NewAWSSESEmailServiceWithClient wraps an existing SES client
func NewAWSSESEmailServiceWithClient(client SESAPI, fromAddress string, logger *slog.Logger) *AWSSESEmailService {
	return &AWSSESEmailService{
		sesClient:   client,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

// SendGuardianVerificationEmail asks the guardian to confirm a link the student approved
func (s *AWSSESEmailService) SendGuardianVerificationEmail(ctx context.Context, to, studentName, verificationLink string, expiresAt time.Time) error {
	subject, body := guardianVerificationMessage(studentName, verificationLink, expiresAt)
	return s.send(ctx, to, subject, body)
}

// SendLockoutNotice tells the account owner that sign-in was locked
func (s *AWSSESEmailService) SendLockoutNotice(ctx context.Context, to string, lockedUntil time.Time) error {
	subject, body := lockoutNoticeMessage(lockedUntil)
	return s.send(ctx, to, subject, body)
}

func (s *AWSSESEmailService) send(ctx context.Context, to, subject, body string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// LogEmailService writes emails to the log instead of sending them. Used in development.
type LogEmailService struct {
	logger *slog.Logger
}

func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendGuardianVerificationEmail(ctx context.Context, to, studentName, verificationLink string, expiresAt time.Time) error {
	subject, _ := guardianVerificationMessage(studentName, verificationLink, expiresAt)
	s.logger.InfoContext(ctx, "email not sent (log provider)",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("subject", subject),
		slog.String("verification_link", verificationLink))
	return nil
}

func (s *LogEmailService) SendLockoutNotice(ctx context.Context, to string, lockedUntil time.Time) error {
	subject, _ := lockoutNoticeMessage(lockedUntil)
	s.logger.InfoContext(ctx, "email not sent (log provider)",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("subject", subject))
	return nil
}

func guardianVerificationMessage(studentName, verificationLink string, expiresAt time.Time) (string, string) {
	subject := "Confirm your link to a student account"
	body := fmt.Sprintf(`%s has approved your request to link with their student account.

To finish linking, open this link:

%s

The link is valid until %s and can be used once.

If you did not ask to link with this student, ignore this email and no link will be created.
`, studentName, verificationLink, expiresAt.UTC().Format("2006-01-02 15:04 MST"))
	return subject, body
}

func lockoutNoticeMessage(lockedUntil time.Time) (string, string) {
	subject := "Sign-in to your account was locked"
	body := fmt.Sprintf(`We locked sign-in to your account after several failed attempts.

You can try again after %s.

If these attempts were not yours, change your password once you are able to sign in.
`, lockedUntil.UTC().Format("2006-01-02 15:04 MST"))
	return subject, body
}

// AsyncMailer sends emails in the background so request handlers never wait
// on the email provider. Failures are logged and counted, not retried.
type AsyncMailer struct {
	sender  EmailService
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewAsyncMailer creates a mailer that gives each send its own timeout
func NewAsyncMailer(sender EmailService, timeout time.Duration, logger *slog.Logger) *AsyncMailer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AsyncMailer{
		sender:  sender,
		timeout: timeout,
		logger:  logger,
	}
}

// SendGuardianVerificationEmail queues the guardian verification email
func (m *AsyncMailer) SendGuardianVerificationEmail(_ context.Context, to, studentName, verificationLink string, expiresAt time.Time) error {
	m.dispatch("guardian_verification", to, func(ctx context.Context) error {
		return m.sender.SendGuardianVerificationEmail(ctx, to, studentName, verificationLink, expiresAt)
	})
	return nil
}

// SendLockoutNotice queues the lockout notice
func (m *AsyncMailer) SendLockoutNotice(_ context.Context, to string, lockedUntil time.Time) error {
	m.dispatch("lockout_notice", to, func(ctx context.Context) error {
		return m.sender.SendLockoutNotice(ctx, to, lockedUntil)
	})
	return nil
}

// Wait blocks until every queued email has been attempted
func (m *AsyncMailer) Wait() {
	m.wg.Wait()
}

func (m *AsyncMailer) dispatch(kind, to string, send func(ctx context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		// Detached from the request context, which ends with the response.
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		if err := send(ctx); err != nil {
			metrics.EmailsSentTotal.WithLabelValues(kind, "error").Inc()
			m.logger.Error("async email failed",
				slog.String("kind", kind),
				slog.String("email", pkglogger.SanitizedEmail(to)),
				slog.Any("error", err))
			return
		}
		metrics.EmailsSentTotal.WithLabelValues(kind, "ok").Inc()
	}()
}
