package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/rs/zerolog"

	"emailmanager/internal"
	"emailmanager/internal/config"
	"emailmanager/internal/connectors"
)

const inbox = "INBOX"

type Connector struct {
	name     string
	host     string
	port     int
	user     string
	password string
	timeout  time.Duration
	log      zerolog.Logger
}

func NewConnector(acct config.MailAccount, timeout time.Duration, log zerolog.Logger) (*Connector, error) {
	if acct.IMAPHost == "" || acct.Address == "" || acct.Password == "" {
		return nil, fmt.Errorf("%w: imap account %q needs host, address and password", config.ErrInvalid, acct.Name)
	}
	port := acct.IMAPPort
	if port == 0 {
		port = 993
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Connector{
		name:     acct.Name,
		host:     acct.IMAPHost,
		port:     port,
		user:     acct.Address,
		password: acct.Password,
		timeout:  timeout,
		log:      log.With().Str("component", "imap").Str("account", acct.Name).Logger(),
	}, nil
}

func (c *Connector) Account() string {
	return c.name
}

// session dials, logs in and selects INBOX. The returned func logs out.
func (c *Connector) session(ctx context.Context) (*imapclient.Client, func(), error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	dialer := &net.Dialer{Timeout: c.timeout}
	client, err := imapclient.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: c.host})
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	client.Timeout = c.timeout

	// go-imap v1 has no context support; a cancelled run closes the socket.
	stop := context.AfterFunc(ctx, func() { _ = client.Terminate() })
	closeFn := func() {
		stop()
		_ = client.Logout()
	}

	if err := client.Login(c.user, c.password); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("login %s: %w", c.user, err)
	}
	if _, err := client.Select(inbox, false); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("select %s: %w", inbox, err)
	}
	return client, closeFn, nil
}

func (c *Connector) FetchUnread(ctx context.Context, limit int, since time.Time) ([]*internal.Message, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if !since.IsZero() {
		criteria.Since = since
	}
	return c.search(ctx, criteria, limit)
}

func (c *Connector) FetchRecent(ctx context.Context, since time.Time, limit int) ([]*internal.Message, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	return c.search(ctx, criteria, limit)
}

func (c *Connector) search(ctx context.Context, criteria *imap.SearchCriteria, limit int) ([]*internal.Message, error) {
	client, closeFn, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	uids, err := client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	// Peek keeps the \Seen flag untouched.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}
	messages := make(chan *imap.Message, len(uids))
	fetchDone := make(chan error, 1)
	go func() { fetchDone <- client.UidFetch(seqset, items, messages) }()

	out := make([]*internal.Message, 0, len(uids))
	for msg := range messages {
		if msg == nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			c.log.Warn().Err(err).Uint32("uid", msg.Uid).Msg("read message")
			continue
		}
		parsed, err := connectors.ParseMessage(c.name, strconv.FormatUint(uint64(msg.Uid), 10), raw)
		if err != nil {
			c.log.Warn().Err(err).Uint32("uid", msg.Uid).Msg("skip unparsable message")
			continue
		}
		out = append(out, parsed)
	}

	if err := <-fetchDone; err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return out, nil
}

func (c *Connector) MarkRead(ctx context.Context, localID string) error {
	uid, err := strconv.ParseUint(localID, 10, 32)
	if err != nil {
		return fmt.Errorf("bad uid %q: %w", localID, err)
	}

	client, closeFn, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return client.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil)
}
