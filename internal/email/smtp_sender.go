package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"wallet-sync/internal/domain"
)

const defaultDialTimeout = 10 * time.Second

// SMTPConfig agrupa los parametros del servidor de correo.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// ImplicitTLS abre la conexion ya cifrada (puerto 465). Sin el, se
	// negocia STARTTLS si el servidor lo ofrece.
	ImplicitTLS bool
}

// SMTPSender envia los avisos de movimientos via SMTP.
type SMTPSender struct {
	cfg  SMTPConfig
	from mail.Address
	now  func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	from, err := mail.ParseAddress(strings.TrimSpace(cfg.From))
	if err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	from.Name = strings.TrimSpace(cfg.FromName)
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg, from: *from, now: time.Now}, nil
}

// SendAlert respeta la cancelacion y el deadline de ctx durante el dialogo.
func (s *SMTPSender) SendAlert(ctx context.Context, toEmail string, alert domain.Alert) error {
	to, err := mail.ParseAddress(strings.TrimSpace(toEmail))
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	client, conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := s.deliver(client, to.Address, s.compose(*to, alert)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return client.Quit()
}

func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, net.Conn, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := &net.Dialer{Timeout: defaultDialTimeout}

	var conn net.Conn
	var err error
	if s.cfg.ImplicitTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.cfg.Host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return client, conn, nil
}

func (s *SMTPSender) deliver(client *smtp.Client, to string, msg []byte) error {
	if !s.cfg.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if s.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.from.Address); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// compose arma el mensaje en texto plano con CRLF.
func (s *SMTPSender) compose(to mail.Address, alert domain.Alert) []byte {
	var b strings.Builder
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }
	header("From", s.from.String())
	header("To", to.String())
	header("Subject", alertSubject(alert))
	header("Date", s.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="UTF-8"`)
	header("X-Wallet-Alert", string(alert.Kind))
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(alertBody(alert), "\n", "\r\n"))
	return []byte(b.String())
}

func alertSubject(alert domain.Alert) string {
	return "[Wallet] " + alert.Title
}

func alertBody(alert domain.Alert) string {
	var b strings.Builder
	b.WriteString(alert.Description)
	b.WriteString(".\n")
	if alert.Amount != "" {
		fmt.Fprintf(&b, "Amount: %s %s\n", alert.Amount, alert.Token)
	}
	fmt.Fprintf(&b, "Reference: %s #%d\n", alert.Kind, alert.EntityID)
	return b.String()
}
