package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mailmatrix/backend/internal/ingest"
	"github.com/mailmatrix/backend/internal/store"
)

// Adapter implements ingest.MailProvider for Gmail.
type Adapter struct {
	svc *gmail.Service
}

// New creates a Gmail adapter bound to one user's credential.
func New(ctx context.Context, cred store.Credential) (*Adapter, error) {
	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
	}

	config := &oauth2.Config{
		Scopes: []string{gmail.GmailReadonlyScope},
	}

	httpClient := config.Client(ctx, token)

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Adapter{svc: svc}, nil
}

// ListRecent returns up to limit message ids from the inbox, most
// recent first.
func (a *Adapter) ListRecent(ctx context.Context, limit int64) ([]string, error) {
	resp, err := a.svc.Users.Messages.List("me").MaxResults(limit).Context(ctx).Do()
	if err != nil {
		return nil, mapError("list messages", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// FetchDetail resolves one message id to its headers and plain-text body.
func (a *Adapter) FetchDetail(ctx context.Context, id string) (ingest.MessageDetail, error) {
	msg, err := a.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return ingest.MessageDetail{}, mapError("get message", err)
	}

	return normalize(msg), nil
}

// normalize extracts the classification-relevant fields from a Gmail
// message, applying placeholders for absent headers.
func normalize(m *gmail.Message) ingest.MessageDetail {
	detail := ingest.MessageDetail{
		Subject: ingest.NoSubject,
		From:    ingest.NoSender,
	}

	if m.Payload == nil {
		return detail
	}

	for _, h := range m.Payload.Headers {
		switch h.Name {
		case "Subject":
			detail.Subject = h.Value
		case "From":
			detail.From = h.Value
		case "Date":
			detail.Date = h.Value
		}
	}

	detail.Body = extractBody(m.Payload)
	return detail
}

// extractBody picks the first text/plain part, falling back to the
// top-level body when the message is not multipart. A body that cannot
// be decoded yields an empty string; the message stays classifiable by
// subject alone.
func extractBody(p *gmail.MessagePart) string {
	var data string

	if len(p.Parts) > 0 {
		for _, part := range p.Parts {
			if part.MimeType == "text/plain" && part.Body != nil {
				data = part.Body.Data
				break
			}
		}
	} else if p.Body != nil {
		data = p.Body.Data
	}

	if data == "" {
		return ""
	}

	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail usually emits unpadded base64url.
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}

	return string(decoded)
}

// mapError folds Gmail API failures into the ingest error taxonomy.
func mapError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		// The transport failed to refresh the token mid-call.
		return fmt.Errorf("%s: %w: %v", op, ingest.ErrAuth, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			return fmt.Errorf("%s: %w: %v", op, ingest.ErrAuth, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w: %v", op, ingest.ErrTransient, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
