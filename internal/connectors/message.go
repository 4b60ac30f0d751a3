package connectors

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"

	"emailmanager/internal"
	"emailmanager/internal/util"
)

const DefaultBodyLimit = 3000

// ParseMessage builds a Message from a raw RFC 822 payload. Headers are
// decoded eagerly; the body stays in Raw until LoadBody.
func ParseMessage(account, localID string, raw []byte) (*internal.Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message %s/%s: %w", account, localID, err)
	}

	from := strings.TrimSpace(env.GetHeader("From"))
	msg := &internal.Message{
		MessageID: strings.TrimSpace(env.GetHeader("Message-ID")),
		LocalID:   localID,
		Account:   account,
		Subject:   strings.TrimSpace(env.GetHeader("Subject")),
		From:      from,
		FromLower: strings.ToLower(from),
		Raw:       raw,
	}
	if d, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		msg.Date = &d
	}
	return msg, nil
}

// ExtractBody prefers text/plain, falls back to stripped HTML, then to the
// text of PDF attachments. Attachments never add to a non-empty body.
func ExtractBody(raw []byte, limit int) (string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}

	body := strings.TrimSpace(env.Text)
	if body == "" && env.HTML != "" {
		body = htmlToText(env.HTML)
	}
	if body == "" {
		for _, att := range env.Attachments {
			if !isPDF(att) {
				continue
			}
			text, err := pdfText(att.Content)
			if err != nil {
				continue
			}
			body = strings.TrimSpace(body + "\n" + text)
		}
	}
	return util.Truncate(strings.TrimSpace(body), limit), nil
}

func isPDF(p *enmime.Part) bool {
	return strings.EqualFold(p.ContentType, "application/pdf") ||
		strings.HasSuffix(strings.ToLower(p.FileName), ".pdf")
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script,style,head").Remove()
	return util.CollapseSpaces(doc.Text())
}

func pdfText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return util.CollapseSpaces(b.String()), nil
}
