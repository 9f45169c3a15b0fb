package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/jordan-wright/email"
)

type Sender interface {
	Send(ctx context.Context, to []string, subject, html string) error
}

type SMTPSender struct {
	from string
	addr string
	auth smtp.Auth
}

// NewSMTPSender sends through an authenticated SMTP relay such as Gmail.
func NewSMTPSender(senderName, user, password, host string, port int) *SMTPSender {
	return &SMTPSender{
		from: fmt.Sprintf("%s <%s>", senderName, user),
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: smtp.PlainAuth("", user, password, host),
	}
}

func (s *SMTPSender) Send(ctx context.Context, to []string, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := email.NewEmail()
	e.From = s.from
	e.To = to
	e.Subject = subject
	e.HTML = []byte(html)
	if err := e.Send(s.addr, s.auth); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

type OrderLine struct {
	Name     string
	Quantity int
	Price    string
}

type OrderConfirmationData struct {
	CustomerName string
	OrderID      string
	Total        string
	Lines        []OrderLine
	Address      string
}

type MessageReplyData struct {
	Name     string
	Subject  string
	Original string
	Response string
}

var (
	orderConfirmationTmpl = template.Must(template.New("order").Parse(orderConfirmationHTML))
	messageReplyTmpl      = template.Must(template.New("reply").Parse(messageReplyHTML))
)

func RenderOrderConfirmation(data OrderConfirmationData) (string, error) {
	return render(orderConfirmationTmpl, data)
}

func RenderMessageReply(data MessageReplyData) (string, error) {
	return render(messageReplyTmpl, data)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}

const orderConfirmationHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Thanks for your order{{if .CustomerName}}, {{.CustomerName}}{{end}}!</h2>
  <p>Order <strong>{{.OrderID}}</strong> has been paid.</p>
  <table cellpadding="6">
    <tr><th align="left">Item</th><th>Qty</th><th align="right">Price</th></tr>
    {{range .Lines}}<tr><td>{{.Name}}</td><td align="center">{{.Quantity}}</td><td align="right">${{.Price}}</td></tr>
    {{end}}
  </table>
  <p><strong>Total: ${{.Total}}</strong></p>
  {{if .Address}}<p>Shipping to: {{.Address}}</p>{{end}}
</body>
</html>`

const messageReplyHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <p>Hi {{.Name}},</p>
  <p>{{.Response}}</p>
  <hr>
  <p style="color: #777;">Your message{{if .Subject}} "{{.Subject}}"{{end}}:</p>
  <blockquote style="color: #777;">{{.Original}}</blockquote>
</body>
</html>`
