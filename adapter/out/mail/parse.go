package mail

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"
	"github.com/rs/zerolog"

	"mailroom/core/domain"
	"mailroom/pkg/apperr"
)

func init() {
	// Unknown charsets fall back to reading the bytes as-is instead of
	// failing the whole message.
	message.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
}

// ParseMessage decodes one raw RFC 5322 message into the domain shape.
// Header decoding is defensive throughout: a malformed date becomes
// the current time, an undecodable header keeps its raw form.
func ParseMessage(raw []byte, log zerolog.Logger) (*domain.InboundMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, apperr.MessageParse("", err)
	}

	header := mr.Header

	msg := &domain.InboundMessage{
		ExternalID: messageID(header),
		Subject:    decodedSubject(header),
	}

	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		msg.FromEmail = from[0].Address
		msg.FromName = from[0].Name
	}

	if date, err := header.Date(); err == nil && !date.IsZero() {
		msg.ReceivedAt = date
	} else {
		log.Warn().Str("external_id", msg.ExternalID).Msg("malformed date header, using current time")
		msg.ReceivedAt = time.Now()
	}

	if inReplyTo, err := header.MsgIDList("In-Reply-To"); err == nil && len(inReplyTo) > 0 {
		msg.InReplyTo = inReplyTo[0]
	}
	if refs, err := header.MsgIDList("References"); err == nil {
		msg.References = refs
	}

	var plainBody, htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A broken part does not discard the parts already read.
			log.Warn().Err(err).Str("external_id", msg.ExternalID).Msg("mime part unreadable, skipping rest")
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			content, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch ct {
			case "text/plain":
				if plainBody == "" {
					plainBody = string(content)
				}
			case "text/html":
				if htmlBody == "" {
					htmlBody = string(content)
				}
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			ct, _, _ := h.ContentType()
			content, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				log.Warn().Err(readErr).Str("filename", filename).Msg("attachment unreadable, skipping")
				continue
			}
			msg.Attachments = append(msg.Attachments, domain.Attachment{
				Filename:    filename,
				ContentType: ct,
				Data:        content,
				Size:        int64(len(content)),
			})
		}
	}

	// Plain text wins; HTML-only messages are converted.
	msg.Body = plainBody
	if msg.Body == "" && htmlBody != "" {
		msg.Body = html2text.HTML2Text(htmlBody)
	}

	if msg.ExternalID == "" {
		return nil, apperr.MessageParse("", fmt.Errorf("message has no Message-ID header"))
	}
	return msg, nil
}

// messageID returns the bare message id, matching the form MsgIDList
// yields for References so thread tokens and external ids compare.
func messageID(header mail.Header) string {
	if id, err := header.MessageID(); err == nil && id != "" {
		return id
	}
	// Keep whatever raw value is there rather than dropping the message.
	return strings.Trim(strings.TrimSpace(header.Get("Message-Id")), "<>")
}

func decodedSubject(header mail.Header) string {
	if subject, err := header.Subject(); err == nil {
		return subject
	}
	return header.Get("Subject")
}
