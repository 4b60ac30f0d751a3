package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"emailmanager/internal"
	"emailmanager/internal/config"
	"emailmanager/internal/connectors"
)

const unreadLabel = "UNREAD"

type Connector struct {
	name    string
	service *gmail.Service
	log     zerolog.Logger
}

func NewConnector(ctx context.Context, name string, cfg config.Config, log zerolog.Logger) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		// modify is the narrowest scope that can clear UNREAD.
		Scopes: []string{gmail.GmailModifyScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{
		name:    name,
		service: svc,
		log:     log.With().Str("component", "gmail").Str("account", name).Logger(),
	}, nil
}

func (c *Connector) Account() string {
	return c.name
}

func (c *Connector) FetchUnread(ctx context.Context, limit int, since time.Time) ([]*internal.Message, error) {
	return c.list(ctx, query("is:unread", since), limit)
}

func (c *Connector) FetchRecent(ctx context.Context, since time.Time, limit int) ([]*internal.Message, error) {
	return c.list(ctx, query("", since), limit)
}

func query(base string, since time.Time) string {
	parts := []string{"in:inbox"}
	if base != "" {
		parts = append(parts, base)
	}
	if !since.IsZero() {
		parts = append(parts, "after:"+since.Format("2006/01/02"))
	}
	return strings.Join(parts, " ")
}

// list pages through message ids (newest first) until limit, then fetches
// each raw payload.
func (c *Connector) list(ctx context.Context, q string, limit int) ([]*internal.Message, error) {
	var ids []string
	pageToken := ""
	for {
		call := c.service.Users.Messages.List("me").Q(q).Context(ctx)
		if limit > 0 {
			call = call.MaxResults(int64(limit - len(ids)))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, ref := range resp.Messages {
			if ref.Id != "" {
				ids = append(ids, ref.Id)
			}
		}
		if resp.NextPageToken == "" || (limit > 0 && len(ids) >= limit) {
			break
		}
		pageToken = resp.NextPageToken
	}

	out := make([]*internal.Message, 0, len(ids))
	for _, id := range ids {
		rawResp, err := c.service.Users.Messages.Get("me", id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get message %s: %w", id, err)
		}
		if rawResp.Raw == "" {
			continue
		}
		rawBytes, err := decodeBase64URL(rawResp.Raw)
		if err != nil {
			c.log.Warn().Err(err).Str("local_id", id).Msg("skip undecodable message")
			continue
		}
		msg, err := connectors.ParseMessage(c.name, id, rawBytes)
		if err != nil {
			c.log.Warn().Err(err).Str("local_id", id).Msg("skip unparsable message")
			continue
		}
		if msg.MessageID == "" {
			msg.MessageID = id
		}
		if msg.Date == nil && rawResp.InternalDate > 0 {
			d := time.UnixMilli(rawResp.InternalDate)
			msg.Date = &d
		}
		out = append(out, msg)
	}
	return out, nil
}

func (c *Connector) MarkRead(ctx context.Context, localID string) error {
	_, err := c.service.Users.Messages.Modify("me", localID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{unreadLabel},
	}).Context(ctx).Do()
	return err
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}
