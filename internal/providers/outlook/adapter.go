package outlook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/mailmatrix/backend/internal/ingest"
	"github.com/mailmatrix/backend/internal/store"
)

// Adapter implements ingest.MailProvider for Outlook via Microsoft Graph.
type Adapter struct {
	client *msgraphsdk.GraphServiceClient
}

// New creates an Outlook adapter bound to one user's credential.
func New(ctx context.Context, cred store.Credential) (*Adapter, error) {
	tokenCred := &staticTokenCredential{
		token:  cred.AccessToken,
		expiry: cred.Expiry,
	}

	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(tokenCred, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph client: %w", err)
	}

	return &Adapter{client: client}, nil
}

// ListRecent returns up to limit message ids, most recent first.
func (a *Adapter) ListRecent(ctx context.Context, limit int64) ([]string, error) {
	requestConfig := &users.ItemMessagesRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMessagesRequestBuilderGetQueryParameters{
			Top:     int32Ptr(int32(limit)),
			Select:  []string{"id"},
			Orderby: []string{"receivedDateTime desc"},
		},
	}

	result, err := a.client.Me().Messages().Get(ctx, requestConfig)
	if err != nil {
		return nil, mapError("list messages", err)
	}

	messages := result.GetValue()
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		if id := msg.GetId(); id != nil {
			ids = append(ids, *id)
		}
	}
	return ids, nil
}

// FetchDetail resolves one message id to its headers and plain-text body.
func (a *Adapter) FetchDetail(ctx context.Context, id string) (ingest.MessageDetail, error) {
	requestConfig := &users.ItemMessagesMessageItemRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMessagesMessageItemRequestBuilderGetQueryParameters{
			Select: []string{"subject", "from", "receivedDateTime", "body", "bodyPreview", "internetMessageHeaders"},
		},
	}

	msg, err := a.client.Me().Messages().ByMessageId(id).Get(ctx, requestConfig)
	if err != nil {
		return ingest.MessageDetail{}, mapError("get message", err)
	}

	return normalize(msg), nil
}

// UserEmail resolves the mailbox owner's address, used once after the
// OAuth exchange to key the credential record.
func (a *Adapter) UserEmail(ctx context.Context) (string, error) {
	requestConfig := &users.UserItemRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.UserItemRequestBuilderGetQueryParameters{
			Select: []string{"mail", "userPrincipalName"},
		},
	}

	me, err := a.client.Me().Get(ctx, requestConfig)
	if err != nil {
		return "", mapError("get profile", err)
	}

	if mail := me.GetMail(); mail != nil && *mail != "" {
		return *mail, nil
	}
	if upn := me.GetUserPrincipalName(); upn != nil && *upn != "" {
		return *upn, nil
	}

	return "", fmt.Errorf("profile has no mail address")
}

// normalize extracts the classification-relevant fields from a Graph
// message, applying placeholders for absent headers.
func normalize(m models.Messageable) ingest.MessageDetail {
	detail := ingest.MessageDetail{
		Subject: ingest.NoSubject,
		From:    ingest.NoSender,
	}

	if subject := m.GetSubject(); subject != nil && *subject != "" {
		detail.Subject = *subject
	}

	if from := m.GetFrom(); from != nil {
		if emailAddr := from.GetEmailAddress(); emailAddr != nil {
			if addr := emailAddr.GetAddress(); addr != nil && *addr != "" {
				detail.From = *addr
			}
		}
	}

	// Prefer the wire Date header; the dedup key compares the raw string.
	for _, h := range m.GetInternetMessageHeaders() {
		if name := h.GetName(); name != nil && *name == "Date" {
			if value := h.GetValue(); value != nil {
				detail.Date = *value
			}
			break
		}
	}
	if detail.Date == "" {
		if rcvd := m.GetReceivedDateTime(); rcvd != nil {
			detail.Date = rcvd.Format(time.RFC1123Z)
		}
	}

	detail.Body = extractBody(m)
	return detail
}

// extractBody returns the message text: the body when Graph delivers it
// as plain text, otherwise the plain-text preview Graph derives from
// HTML bodies. Absent both, the body stays empty and the message is
// still classifiable by subject.
func extractBody(m models.Messageable) string {
	if body := m.GetBody(); body != nil {
		if ct := body.GetContentType(); ct != nil && *ct == models.TEXT_BODYTYPE {
			if content := body.GetContent(); content != nil {
				return *content
			}
		}
	}

	if preview := m.GetBodyPreview(); preview != nil {
		return *preview
	}

	return ""
}

// mapError folds Graph failures into the ingest error taxonomy.
func mapError(op string, err error) error {
	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) {
		code := odataErr.ResponseStatusCode
		if code == http.StatusUnauthorized || code == http.StatusForbidden {
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

// staticTokenCredential hands the stored access token to the Graph SDK.
type staticTokenCredential struct {
	token  string
	expiry time.Time
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	expiry := c.expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(1 * time.Hour)
	}
	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: expiry,
	}, nil
}

func int32Ptr(i int32) *int32 {
	return &i
}
