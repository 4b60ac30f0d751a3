// Package app wires the configured collaborators into a runnable pipeline.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"emailmanager/internal/config"
	"emailmanager/internal/connectors"
	gmailconnector "emailmanager/internal/connectors/gmail"
	imapconnector "emailmanager/internal/connectors/imap"
	"emailmanager/internal/llm"
	"emailmanager/internal/notify"
	"emailmanager/internal/notion"
	"emailmanager/internal/pipeline"
	"emailmanager/internal/rules"
	"emailmanager/internal/storage"
	"emailmanager/internal/syncer"
)

type App struct {
	Config config.Config
	Store  *storage.DB
	log    zerolog.Logger
}

// Open loads the local store only. Commands that touch the network call
// Pipeline afterwards.
func Open(cfg config.Config, log zerolog.Logger) (*App, error) {
	db, err := storage.Open(cfg.StateDBPath, log)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	return &App{Config: cfg, Store: db, log: log}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// Pipeline validates the configuration and builds every collaborator.
// Configuration problems fail here, never mid-run.
func (a *App) Pipeline(ctx context.Context) (*pipeline.Processor, *notify.Notifier, error) {
	cfg := a.Config
	res := config.Validate(cfg)
	for _, w := range res.Warnings {
		a.log.Warn().Msg(w)
	}
	if err := res.Err(); err != nil {
		return nil, nil, err
	}

	conns, err := MakeConnectors(ctx, cfg, a.log)
	if err != nil {
		return nil, nil, err
	}
	mailbox := connectors.NewMailbox(conns, a.log)
	a.log.Info().Strs("accounts", mailbox.Accounts()).Msg("mailboxes configured")

	caller := llm.NewClient(llm.Options{
		APIKey:     cfg.KimiAPIKey,
		BaseURL:    cfg.KimiAPIURL,
		Model:      cfg.KimiModel,
		MaxRetries: 2,
	}, a.log)

	client := notion.NewClient(notion.Options{
		Token:         cfg.NotionToken,
		BaseURL:       cfg.NotionAPIURL,
		Version:       cfg.NotionVersion,
		Timeout:       seconds(cfg.NotionTimeoutSec),
		RateLimitRPS:  cfg.NotionRateLimitRPS,
		RetryAttempts: cfg.NotionRetryAttempts,
		RetryBackoff:  time.Duration(cfg.NotionRetryBackoff) * time.Millisecond,
	}, a.log)
	dbs := notion.NewDatabases(client, cfg.NotionParentPageID, a.Store, a.log)

	notifier := NewNotifier(cfg, a.log)

	proc := pipeline.New(pipeline.Deps{
		Mailbox:  mailbox,
		LLM:      caller,
		Rules:    rules.Default(),
		Syncer:   syncer.New(dbs, a.Store, a.log),
		Store:    a.Store,
		Notifier: notifier,
	}, pipeline.Options{
		MaxEmails:         cfg.MaxEmailsPerRun,
		MaxAgeDays:        cfg.MaxAgeDays,
		Stage1BatchSize:   cfg.Stage1BatchSize,
		Stage2BodyLimit:   cfg.Stage2BodyLimit,
		Stage2Concurrency: cfg.Stage2Concurrency,
		LLMTimeout:        seconds(cfg.KimiTimeoutSec),
	}, a.log)
	return proc, notifier, nil
}

// MakeConnectors builds one connector per configured account.
func MakeConnectors(ctx context.Context, cfg config.Config, log zerolog.Logger) ([]connectors.MailConnector, error) {
	imapTimeout := seconds(cfg.IMAPTimeoutSec)
	out := make([]connectors.MailConnector, 0, len(cfg.Accounts))
	for _, acct := range cfg.Accounts {
		switch acct.Provider {
		case config.ProviderGmail:
			c, err := gmailconnector.NewConnector(ctx, acct.Name, cfg, log)
			if err != nil {
				return nil, fmt.Errorf("gmail account %q: %w", acct.Name, err)
			}
			out = append(out, c)
		case config.ProviderIMAP, "":
			c, err := imapconnector.NewConnector(acct, imapTimeout, log)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		default:
			return nil, fmt.Errorf("%w: account %q has unsupported provider %q", config.ErrInvalid, acct.Name, acct.Provider)
		}
	}
	return out, nil
}

// NewNotifier builds the iMessage notifier. A malformed quiet-hours value
// is logged and treated as no quiet hours.
func NewNotifier(cfg config.Config, log zerolog.Logger) *notify.Notifier {
	quiet, err := notify.ParseQuietHours(cfg.IMessageQuietHours)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring quiet hours")
	}
	return notify.New(
		notify.NewIMessageSender(cfg.IMessageRecipient, cfg.IMessageSender),
		notify.Options{
			Enabled: cfg.IMessageEnabled,
			Level:   notify.Level(cfg.IMessageNotifyLevel),
			Quiet:   quiet,
		},
		log,
	)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
