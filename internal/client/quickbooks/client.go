package quickbooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the QuickBooks Online v3 API for one upstream app
// (client id/secret pair). Per-tenant state (realm id, access token) is
// passed per call.
type Client struct {
	HTTP         *http.Client
	BaseURL      string
	OAuthBaseURL string
	ClientID     string
	ClientSecret string

	// PageSize is the MAXRESULTS per query page (upstream cap 1000).
	PageSize int
	// PagePause bounds the request rate between pages of one query.
	PagePause time.Duration
}

func NewClient(httpClient *http.Client, baseURL, oauthBaseURL, clientID, clientSecret string) *Client {
	return &Client{
		HTTP:         httpClient,
		BaseURL:      strings.TrimRight(baseURL, "/"),
		OAuthBaseURL: strings.TrimRight(oauthBaseURL, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		PageSize:     1000,
	}
}

// RealmStatus classifies the identity-verification response.
type RealmStatus int

const (
	RealmOK RealmStatus = iota
	RealmUnauthorized
	RealmNotFound
)

// VerifyRealm performs the lightweight companyinfo request. A non-2xx status
// outside 401/403/404 is returned as an error (transient).
func (c *Client) VerifyRealm(ctx context.Context, realmID, accessToken string) (RealmStatus, error) {
	u := fmt.Sprintf("%s/v3/company/%s/companyinfo/%s",
		c.BaseURL, url.PathEscape(realmID), url.PathEscape(realmID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return RealmUnauthorized, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return RealmUnauthorized, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusOK:
		return RealmOK, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return RealmUnauthorized, nil
	case resp.StatusCode == http.StatusNotFound:
		return RealmNotFound, nil
	default:
		return RealmUnauthorized, fmt.Errorf("companyinfo http %d for realm %s", resp.StatusCode, realmID)
	}
}

// TokenResponse is the OAuth refresh grant payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshToken exchanges a refresh token for a new token pair. Upstream may
// rotate the refresh token; callers must persist the returned pair before
// reusing either value.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.OAuthBaseURL+"/oauth2/v1/tokens/bearer", strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return TokenResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TokenResponse{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return TokenResponse{}, fmt.Errorf("token refresh http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return TokenResponse{}, err
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return TokenResponse{}, fmt.Errorf("token refresh returned incomplete pair")
	}
	return tr, nil
}

// QueryAll fetches every record for entity, paginating until a short page.
// since, when non-nil, restricts to records updated after that instant;
// upstream orders by its own LastUpdatedTime and the order is forwarded
// unchanged.
func (c *Client) QueryAll(ctx context.Context, realmID, accessToken, entity string, since *time.Time) ([]map[string]any, error) {
	if !validEntityName(entity) {
		return nil, fmt.Errorf("invalid entity name %q", entity)
	}
	pageSize := c.PageSize
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}

	var all []map[string]any
	start := 1
	for {
		records, err := c.queryPage(ctx, realmID, accessToken, entity, since, start, pageSize)
		if err != nil {
			return all, err
		}
		all = append(all, records...)
		if len(records) < pageSize {
			return all, nil
		}
		start += pageSize
		if c.PagePause > 0 {
			t := time.NewTimer(c.PagePause)
			select {
			case <-ctx.Done():
				t.Stop()
				return all, ctx.Err()
			case <-t.C:
			}
		}
	}
}

func (c *Client) queryPage(ctx context.Context, realmID, accessToken, entity string, since *time.Time, start, pageSize int) ([]map[string]any, error) {
	var q strings.Builder
	fmt.Fprintf(&q, "SELECT * FROM %s", entity)
	if since != nil {
		fmt.Fprintf(&q, " WHERE Metadata.LastUpdatedTime > '%s'", since.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&q, " ORDERBY Metadata.LastUpdatedTime STARTPOSITION %d MAXRESULTS %d", start, pageSize)

	u := fmt.Sprintf("%s/v3/company/%s/query", c.BaseURL, url.PathEscape(realmID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(q.String()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/text")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s query http %d: %s", entity, resp.StatusCode, truncate(string(body), 200))
	}

	var envelope struct {
		QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%s query decode: %w", entity, err)
	}
	raw, ok := envelope.QueryResponse[entity]
	if !ok {
		return nil, nil
	}

	// UseNumber keeps amounts out of float64 on the way to the store.
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%s records decode: %w", entity, err)
	}
	return records, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func validEntityName(entity string) bool {
	if entity == "" {
		return false
	}
	for _, r := range entity {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
