package notify

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/sellaris/backend-crm/internal/deal"
)

// SignatureRequestEmail composes the message sent to a quote recipient with
// their personal signing link.
func SignatureRequestEmail(d deal.Deal, baseURL, token string) (subject, body string) {
	subject = fmt.Sprintf("Quote %s is ready for your signature", d.QuoteNumber)

	link := signingLink(baseURL, token)
	var b strings.Builder
	b.WriteString("<p>Hello,</p>")
	fmt.Fprintf(&b, "<p>You have received quote <strong>%s</strong>", html.EscapeString(d.QuoteNumber))
	if d.Title != "" {
		fmt.Fprintf(&b, " (%s)", html.EscapeString(d.Title))
	}
	fmt.Fprintf(&b, " for a total of <strong>%.2f %s</strong>.</p>", d.TotalAmount, html.EscapeString(d.Currency))
	fmt.Fprintf(&b, `<p><a href="%s">Review and sign the quote</a></p>`, link)
	if d.ExpiryDate != nil {
		fmt.Fprintf(&b, "<p>This quote is valid until %s.</p>", d.ExpiryDate.Format("January 2, 2006"))
	}
	b.WriteString("<p>The link is personal, please do not forward it.</p>")
	return subject, b.String()
}

// QuoteSignedEmail composes the internal notification sent to the deal owner
// once the recipient has signed.
func QuoteSignedEmail(d deal.Deal, signedAt time.Time) (subject, body string) {
	subject = fmt.Sprintf("Quote %s was signed", d.QuoteNumber)

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Quote <strong>%s</strong> was accepted", html.EscapeString(d.QuoteNumber))
	if d.SignedBy != nil {
		fmt.Fprintf(&b, " by %s (%s)", html.EscapeString(d.SignedBy.Name), html.EscapeString(d.SignedBy.Email))
	}
	fmt.Fprintf(&b, " on %s.</p>", signedAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "<p>Total: %.2f %s</p>", d.TotalAmount, html.EscapeString(d.Currency))
	return subject, b.String()
}

func signingLink(baseURL, token string) string {
	base := strings.TrimRight(baseURL, "/")
	return base + "/public/quotes?token=" + url.QueryEscape(token)
}
