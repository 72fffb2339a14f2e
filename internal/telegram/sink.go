package telegram

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/shestoi/paybridge/internal/service"
)

const paidTemplate = `✅ Заказ оплачен
Заказ: {{.OrderID}}
{{- if .JobID}}
Job: {{.JobID}}{{end}}
Сумма: ${{.Amount.StringFixed 2}}
{{- if .Tip.IsPositive}}
Чаевые: ${{.Tip.StringFixed 2}}{{end}}
Способ: {{.Provider}}
{{- if .Email}}
Email: {{.Email}}{{end}}
Время: {{.PaidAt.UTC.Format "2006-01-02 15:04:05"}} UTC`

var paidTmpl = template.Must(template.New("paid").Parse(paidTemplate))

// PaidSink реализует notify.Sink: одно сообщение в операторский чат на каждый paid
type PaidSink struct {
	sender Sender
	chatID string
}

func NewPaidSink(sender Sender, chatID string) *PaidSink {
	return &PaidSink{sender: sender, chatID: chatID}
}

func (s *PaidSink) Name() string { return "telegram" }

func (s *PaidSink) Deliver(ctx context.Context, notice service.PaidNotice) error {
	text, err := RenderPaid(notice)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, s.chatID, text)
}

// RenderPaid текст сообщения об оплате
func RenderPaid(notice service.PaidNotice) (string, error) {
	var buf bytes.Buffer
	if err := paidTmpl.Execute(&buf, notice); err != nil {
		return "", fmt.Errorf("render paid message: %w", err)
	}
	return buf.String(), nil
}
