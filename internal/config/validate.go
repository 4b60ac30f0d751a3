package config

import (
	"fmt"
	"regexp"
	"strings"
)

var reQuietHours = regexp.MustCompile(`^\d{2}:\d{2}-\d{2}:\d{2}$`)

type ValidationResult struct {
	Errors   []string
	Warnings []string
}

func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// Err folds all errors into one ErrInvalid-wrapped error, or nil.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(r.Errors, "; "))
}

func Validate(c Config) ValidationResult {
	var res ValidationResult

	for _, req := range []struct{ name, value string }{
		{"KIMI_API_KEY", c.KimiAPIKey},
		{"NOTION_TOKEN", c.NotionToken},
		{"NOTION_PARENT_PAGE_ID", c.NotionParentPageID},
	} {
		if err := c.Require(req.name, req.value); err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
	}

	pairs := []struct{ label, addrKey, addr, passKey, pass string }{
		{"QQ", "QQ_EMAIL_ADDRESS", c.QQEmailAddress, "QQ_EMAIL_PASSWORD", c.QQEmailPassword},
		{"PKU", "PKU_EMAIL_ADDRESS", c.PKUEmailAddress, "PKU_EMAIL_PASSWORD", c.PKUEmailPassword},
	}
	for _, p := range pairs {
		hasAddr := strings.TrimSpace(p.addr) != ""
		hasPass := strings.TrimSpace(p.pass) != ""
		if hasAddr && !hasPass {
			res.Errors = append(res.Errors, fmt.Sprintf("%s is set but %s is missing", p.addrKey, p.passKey))
		}
		if hasPass && !hasAddr {
			res.Errors = append(res.Errors, fmt.Sprintf("%s is set but %s is missing", p.passKey, p.addrKey))
		}
	}

	gmailParts := 0
	for _, v := range []string{c.GmailClientID, c.GmailClientSecret, c.GmailRefreshToken} {
		if strings.TrimSpace(v) != "" {
			gmailParts++
		}
	}
	if gmailParts > 0 && gmailParts < 3 {
		res.Errors = append(res.Errors, "gmail requires GMAIL_CLIENT_ID, GMAIL_CLIENT_SECRET and GMAIL_REFRESH_TOKEN together")
	}

	if len(c.Accounts) == 0 {
		res.Errors = append(res.Errors, "no mail account configured")
	}

	if c.IMessageEnabled && strings.TrimSpace(c.IMessageRecipient) == "" {
		res.Warnings = append(res.Warnings, "IMESSAGE_ENABLED is true but IMESSAGE_RECIPIENT is empty")
	}
	if c.IMessageQuietHours != "" && !reQuietHours.MatchString(c.IMessageQuietHours) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("IMESSAGE_QUIET_HOURS %q should look like HH:MM-HH:MM", c.IMessageQuietHours))
	}
	switch c.IMessageNotifyLevel {
	case "", "all", "important", "summary":
	default:
		res.Warnings = append(res.Warnings, fmt.Sprintf("unknown IMESSAGE_NOTIFY_LEVEL %q", c.IMessageNotifyLevel))
	}
	if c.KimiAPIKey != "" && len(c.KimiAPIKey) < 20 {
		res.Warnings = append(res.Warnings, "KIMI_API_KEY looks too short")
	}
	if c.NotionToken != "" && !strings.HasPrefix(c.NotionToken, "secret_") && !strings.HasPrefix(c.NotionToken, "ntn_") {
		res.Warnings = append(res.Warnings, "NOTION_TOKEN does not look like an integration token")
	}

	return res
}
