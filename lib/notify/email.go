package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"
	"os"
	"strconv"
	"strings"

	"sahibinden-scraper/internal/components/telemetry"
	"sahibinden-scraper/lib/listing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed templates
var templates embed.FS

var htmlTemplate = template.Must(
	template.New("listings.html.tmpl").
		Funcs(template.FuncMap{
			"join": func(parts []string) string { return strings.Join(parts, ", ") },
		}).
		ParseFS(templates, "templates/listings.html.tmpl"),
)

const (
	DefaultEmailHost = "smtp.gmail.com"
	DefaultEmailPort = 587
)

type EmailOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	To       string
}

// EmailOptionsFromEnv reads EMAIL_HOST, EMAIL_PORT, EMAIL_USER, EMAIL_PASSWORD
// and TO_EMAIL.
func EmailOptionsFromEnv() EmailOptions {
	opts := EmailOptions{
		Host:     os.Getenv("EMAIL_HOST"),
		Port:     DefaultEmailPort,
		User:     os.Getenv("EMAIL_USER"),
		Password: os.Getenv("EMAIL_PASSWORD"),
		To:       os.Getenv("TO_EMAIL"),
	}
	if opts.Host == "" {
		opts.Host = DefaultEmailHost
	}
	if port, err := strconv.Atoi(os.Getenv("EMAIL_PORT")); err == nil && port > 0 {
		opts.Port = port
	}
	return opts
}

func (o EmailOptions) Complete() bool {
	return o.User != "" && o.Password != "" && o.To != ""
}

type SendFunc func(mail *email.Email, addr string, auth smtp.Auth) error

func smtpSend(mail *email.Email, addr string, auth smtp.Auth) error {
	return mail.Send(addr, auth)
}

type EmailNotifier struct {
	opts EmailOptions
	tel  telemetry.API
	send SendFunc
}

// NewEmailNotifier creates an email notifier, send may be nil to deliver
// through SMTP.
func NewEmailNotifier(opts EmailOptions, tel telemetry.API, send SendFunc) EmailNotifier {
	if send == nil {
		send = smtpSend
	}
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}
	return EmailNotifier{
		opts: opts,
		tel:  telemetry.NewScopedAPI("notify", tel),
		send: send,
	}
}

func Subject(count int) string {
	return fmt.Sprintf("Sahibinden - %d Yeni İlan Bulundu!", count)
}

func damageCounts(item listing.Item) (painted, replaced string) {
	if item.Damage == nil {
		return listing.NotAvailable, listing.NotAvailable
	}
	return strconv.Itoa(item.Damage.PaintedCount()), strconv.Itoa(item.Damage.ReplacedCount())
}

// TextBody renders the batch as a plain text table.
func TextBody(batch []listing.Item) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "İlan", "Marka", "Fiyat", "Yıl", "KM", "Boyalı", "Değişen", "Link"})
	for i, item := range batch {
		painted, replaced := damageCounts(item)
		t.AppendRow(table.Row{
			i + 1, item.Title, item.Brand, item.Price, item.Year, item.Mileage,
			painted, replaced, item.URL,
		})
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Belirlediğiniz kriterlere uygun %d yeni ilan bulundu:\n\n", len(batch))
	out.WriteString(t.Render())
	out.WriteString("\n")
	return out.String()
}

func HTMLBody(batch []listing.Item) ([]byte, error) {
	var buf bytes.Buffer
	err := htmlTemplate.Execute(&buf, struct{ Items []listing.Item }{Items: batch})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Send mails the batch, it returns false without sending if the batch is empty
// or the settings are incomplete.
func (n EmailNotifier) Send(ctx context.Context, batch []listing.Item) bool {
	ctx, span := tracer.Start(ctx, "email:Send")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(batch)))

	if len(batch) == 0 {
		return false
	}
	if !n.opts.Complete() {
		n.tel.ReportWarning(
			"email.settings",
			"user", n.opts.User != "",
			"password", n.opts.Password != "",
			"to", n.opts.To != "",
		)
		return false
	}

	html, err := HTMLBody(batch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to render email")
		n.tel.ReportBroken("email.render", err)
		return false
	}

	mail := email.NewEmail()
	mail.From = n.opts.User
	mail.To = []string{n.opts.To}
	mail.Subject = Subject(len(batch))
	mail.Text = []byte(TextBody(batch))
	mail.HTML = html

	err = n.send(
		mail,
		fmt.Sprintf("%s:%d", n.opts.Host, n.opts.Port),
		smtp.PlainAuth("", n.opts.User, n.opts.Password, n.opts.Host),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		n.tel.ReportWarning("email.send", err)
		return false
	}
	n.tel.ReportInfo("email sent", "count", len(batch), "to", n.opts.To)
	return true
}
