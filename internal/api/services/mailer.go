package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rohits-web03/esigned/internal/config"
	"github.com/rohits-web03/esigned/internal/logging"
	"github.com/rohits-web03/esigned/internal/metrics"
	"golang.org/x/sync/errgroup"
	"gopkg.in/gomail.v2"
)

// ActivationMail is one activation code delivery.
type ActivationMail struct {
	To       string
	Username string
	Code     string
}

// ActivationSender delivers an activation email synchronously.
type ActivationSender interface {
	SendActivation(ctx context.Context, m ActivationMail) error
}

var ErrMailNotConfigured = errors.New("email config missing")

var activationTmpl = template.Must(template.New("activation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <div style="background: #1976D2; color: #fff; padding: 24px; text-align: center; border-radius: 10px 10px 0 0;">
      <h1 style="margin: 0;">eSigned</h1>
      <p style="margin: 8px 0 0 0;">Electronic Document Signing Platform</p>
    </div>
    <div style="background: #f8f9fa; padding: 24px; border-radius: 0 0 10px 10px;">
      <p>Hi <strong>{{.Username}}</strong>,</p>
      <p>Use the code below to activate your account:</p>
      <div style="background: #fff; border: 2px dashed #1976D2; border-radius: 8px; padding: 20px; text-align: center;">
        <div style="font-size: 32px; letter-spacing: 3px; font-family: monospace; color: #1976D2;">{{.Code}}</div>
        <p style="margin: 0; color: #999; font-size: 12px;">This code expires in 24 hours</p>
      </div>
      <p style="color: #666;">Never share this code with anyone. If you didn't create an account with eSigned, please ignore this email.</p>
    </div>
  </div>
</body>
</html>`))

const activationSubject = "Activate Your eSigned Account"

type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
	send   func(*gomail.Message) error
}

func NewSMTPMailer(cfg config.SMTPConfig, logger *slog.Logger) *SMTPMailer {
	m := &SMTPMailer{cfg: cfg, logger: logger}
	m.send = func(msg *gomail.Message) error {
		return gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass).DialAndSend(msg)
	}
	return m
}

func (m *SMTPMailer) configured() bool {
	return m.cfg.Host != "" && m.from() != ""
}

func (m *SMTPMailer) from() string {
	if m.cfg.From != "" {
		return m.cfg.From
	}
	return m.cfg.User
}

func (m *SMTPMailer) buildActivation(mail ActivationMail) (*gomail.Message, error) {
	var body bytes.Buffer
	if err := activationTmpl.Execute(&body, mail); err != nil {
		return nil, fmt.Errorf("render activation email: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from())
	msg.SetHeader("To", mail.To)
	msg.SetHeader("Subject", activationSubject)
	msg.SetBody("text/html", body.String())
	return msg, nil
}

// SendActivation dials the SMTP server and sends the code. gomail has no
// context support, so a cancelled ctx abandons the send without aborting it.
func (m *SMTPMailer) SendActivation(ctx context.Context, mail ActivationMail) error {
	if !m.configured() {
		return ErrMailNotConfigured
	}
	if strings.TrimSpace(mail.To) == "" {
		return errors.New("empty recipient")
	}

	msg, err := m.buildActivation(mail)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- m.send(msg) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
	}

	m.logger.Info("activation email sent", slog.String("to", mail.To))
	return nil
}

// Dispatcher delivers activation mail in the background through a bounded queue.
type Dispatcher struct {
	sender  ActivationSender
	queue   chan ActivationMail
	workers int
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sender ActivationSender, workers, size int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan ActivationMail, size),
		workers: workers,
		timeout: timeout,
		logger:  logger,
	}
}

// Enqueue hands m to the workers. It never blocks and reports false when the
// queue is full or the dispatcher is shutting down.
func (d *Dispatcher) Enqueue(m ActivationMail) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- m:
		return true
	default:
		d.logger.Warn("activation mail queue full", slog.String("to", m.To))
		return false
	}
}

// Run starts the workers and blocks until ctx is done and the buffered mail
// has been drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	var g errgroup.Group
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for m := range d.queue {
				d.deliver(m)
			}
			return nil
		})
	}

	<-ctx.Done()
	d.mu.Lock()
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	return g.Wait()
}

func (d *Dispatcher) deliver(m ActivationMail) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.sender.SendActivation(ctx, m)
	metrics.ActivationEmailsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		d.logger.Error("failed to send activation email", slog.String("to", m.To), logging.Err(err))
	}
}
