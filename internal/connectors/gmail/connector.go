package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"chemrecon/internal"
	"chemrecon/internal/catalog"
	"chemrecon/internal/config"
)

type Connector struct {
	service *gmail.Service
	limiter *catalog.RateLimiter
}

func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
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
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc, limiter: catalog.NewRateLimiter(cfg.GmailRateLimitRPS)}, nil
}

// Fetch lists the newest max messages under label that have attachments.
func (c *Connector) Fetch(ctx context.Context, label string, max int) ([]internal.FetchedMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	listResp, err := c.service.Users.Messages.List("me").
		LabelIds(label).
		Q("has:attachment").
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gmail list %s: %w", label, err)
	}

	out := make([]internal.FetchedMessage, 0, len(listResp.Messages))
	for _, ref := range listResp.Messages {
		if ref.Id == "" {
			continue
		}
		msg, err := c.get(ctx, ref.Id)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (c *Connector) get(ctx context.Context, id string) (*internal.FetchedMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	rawResp, err := c.service.Users.Messages.Get("me", id).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail get %s: %w", id, err)
	}
	if rawResp.Raw == "" {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	metaResp, err := c.service.Users.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders("Subject", "From", "Date", "Message-ID").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gmail metadata %s: %w", id, err)
	}

	raw, err := decodeBase64URL(rawResp.Raw)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{}
	if metaResp.Payload != nil {
		for _, h := range metaResp.Payload.Headers {
			headers[strings.ToLower(h.Name)] = h.Value
		}
	}

	messageID := headers["message-id"]
	if messageID == "" {
		messageID = id
	}
	return &internal.FetchedMessage{
		Provider:   "gmail",
		MessageID:  messageID,
		Subject:    headers["subject"],
		From:       headers["from"],
		ReceivedAt: receivedAt(headers["date"]),
		Raw:        raw,
	}, nil
}

func receivedAt(dateHeader string) string {
	if dateHeader != "" {
		if t, err := parseMailDate(dateHeader); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
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

func parseMailDate(value string) (time.Time, error) {
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC850, time.ANSIC}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %q", value)
}
