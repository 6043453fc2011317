package mail

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"mailroom/core/domain"
	"mailroom/pkg/apperr"
)

type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string
}

// IMAPAdapter polls one mailbox over IMAPS. Every poll opens a fresh
// connection, fetches unseen messages read-only and closes the
// connection on all paths; nothing is ever marked seen or deleted, so
// re-polling after a crash is safe.
type IMAPAdapter struct {
	cfg IMAPConfig
	log zerolog.Logger
}

func NewIMAPAdapter(cfg IMAPConfig, log zerolog.Logger) *IMAPAdapter {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	return &IMAPAdapter{
		cfg: cfg,
		log: log.With().Str("component", "imap").Logger(),
	}
}

// FetchUnseen returns every unseen message in the configured mailbox.
// A message that fails to parse is logged and skipped; it must not
// abort the batch.
func (a *IMAPAdapter) FetchUnseen(ctx context.Context) ([]*domain.InboundMessage, error) {
	client, err := imapclient.DialTLS(fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port), nil)
	if err != nil {
		return nil, apperr.TransportConnect(err)
	}
	defer client.Close()

	if err := client.Login(a.cfg.Username, a.cfg.Password).Wait(); err != nil {
		return nil, apperr.TransportAuth(err)
	}
	defer client.Logout()

	if _, err := client.Select(a.cfg.Mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, apperr.TransportConnect(fmt.Errorf("select %s: %w", a.cfg.Mailbox, err))
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return nil, apperr.TransportConnect(fmt.Errorf("search unseen: %w", err))
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	section := &imap.FetchItemBodySection{Peek: true}
	buffers, err := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, apperr.TransportConnect(fmt.Errorf("fetch bodies: %w", err))
	}

	messages := make([]*domain.InboundMessage, 0, len(buffers))
	for _, buf := range buffers {
		raw := buf.FindBodySection(section)
		if len(raw) == 0 {
			a.log.Warn().Uint32("uid", uint32(buf.UID)).Msg("empty body section, skipping")
			continue
		}
		msg, err := ParseMessage(raw, a.log)
		if err != nil {
			// One malformed message must not poison the batch.
			a.log.Error().Err(err).Uint32("uid", uint32(buf.UID)).Msg("message parse failed, skipping")
			continue
		}
		messages = append(messages, msg)
	}

	a.log.Info().Int("unseen", len(uids)).Int("parsed", len(messages)).Msg("mailbox polled")
	return messages, nil
}
