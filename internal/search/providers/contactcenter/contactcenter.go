// Package contactcenter searches the contact-center platform's user directory.
package contactcenter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"peoplefinder/internal/search/domain"
	"peoplefinder/internal/search/providers"
	"peoplefinder/internal/search/providers/restclient"
)

// Extension fields carried by contact-center records.
const (
	FieldPresence      = "presence"
	FieldRoutingStatus = "routingStatus"
	FieldDivision      = "division"
)

var expand = []string{"presence", "routingStatus"}

// Config holds the contact-center API settings.
type Config struct {
	BaseURL string
	Limit   int
}

// Backend implements providers.Backend over the contact-center REST API.
type Backend struct {
	cfg    Config
	client *restclient.Client
}

// New builds the contact-center backend.
func New(cfg Config, httpClient *http.Client, tokens providers.TokenProvider) (*Backend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("contact center base URL is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("contact center token provider is required")
	}
	return &Backend{
		cfg:    cfg,
		client: restclient.New(providers.ContactCenter, cfg.BaseURL, httpClient, tokens),
	}, nil
}

type searchCriteria struct {
	Type   string   `json:"type"`
	Value  string   `json:"value"`
	Fields []string `json:"fields"`
}

type searchRequest struct {
	PageSize   int              `json:"pageSize"`
	PageNumber int              `json:"pageNumber"`
	Query      []searchCriteria `json:"query"`
	Expand     []string         `json:"expand"`
}

type contact struct {
	Address   string `json:"address"`
	Extension string `json:"extension"`
	MediaType string `json:"mediaType"`
	Type      string `json:"type"`
}

type ccUser struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	Title      string    `json:"title"`
	Department string    `json:"department"`
	State      string    `json:"state"`
	Addresses  []contact `json:"addresses"`
	Division   *struct {
		Name string `json:"name"`
	} `json:"division"`
	Presence *struct {
		PresenceDefinition struct {
			SystemPresence string `json:"systemPresence"`
		} `json:"presenceDefinition"`
	} `json:"presence"`
	RoutingStatus *struct {
		Status string `json:"status"`
	} `json:"routingStatus"`
}

type searchResponse struct {
	Total   int      `json:"total"`
	Results []ccUser `json:"results"`
}

func (b *Backend) Name() string { return providers.ContactCenter }

// Search runs an exact match on addresses and a query-string match otherwise.
func (b *Backend) Search(ctx context.Context, term string) (domain.Outcome, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return domain.Absent(), nil
	}

	criteria := searchCriteria{Type: "QUERY_STRING", Value: term, Fields: []string{"email", "name", "username"}}
	if strings.Contains(term, "@") {
		criteria = searchCriteria{Type: "EXACT", Value: term, Fields: []string{"email", "username"}}
	}
	pageSize := 25
	if b.cfg.Limit > 0 {
		pageSize = b.cfg.Limit + 1
	}

	var res searchResponse
	if _, err := b.client.DoJSON(ctx, restclient.Request{
		Method: http.MethodPost,
		Path:   "/api/v2/users/search",
		Body: searchRequest{
			PageSize:   pageSize,
			PageNumber: 1,
			Query:      []searchCriteria{criteria},
			Expand:     expand,
		},
	}, &res); err != nil {
		return domain.Outcome{}, err
	}

	if b.cfg.Limit > 0 && res.Total > b.cfg.Limit {
		return domain.Outcome{}, providers.TooManyResults(b.Name(), b.cfg.Limit)
	}

	records := make([]domain.Record, 0, len(res.Results))
	for _, u := range res.Results {
		records = append(records, toRecord(u))
	}
	return providers.Classify(b.Name(), records, b.cfg.Limit)
}

// FetchByID reads one user with presence expanded.
func (b *Backend) FetchByID(ctx context.Context, id string) (domain.Record, error) {
	if id == "" {
		return nil, nil
	}
	var u ccUser
	res, err := b.client.DoJSON(ctx, restclient.Request{
		Method:   http.MethodGet,
		Path:     "/api/v2/users/" + url.PathEscape(id),
		Query:    url.Values{"expand": {strings.Join(expand, ",")}},
		Allow404: true,
	}, &u)
	if err != nil || res.NotFound() {
		return nil, err
	}
	return toRecord(u), nil
}

// TestConnection reads the organization the client belongs to.
func (b *Backend) TestConnection(ctx context.Context) error {
	_, err := b.client.Do(ctx, restclient.Request{
		Method: http.MethodGet,
		Path:   "/api/v2/organizations/me",
	})
	return err
}

func toRecord(u ccUser) domain.Record {
	r := domain.Record{domain.FieldID: u.ID}
	r.Set(domain.FieldDisplayName, u.Name)
	r.Set(domain.FieldEmail, u.Email)
	r.Set(domain.FieldUsername, u.Username)
	r.Set(domain.FieldJobTitle, u.Title)
	r.Set(domain.FieldDepartment, u.Department)
	if u.State != "" {
		r[domain.FieldAccountEnabled] = strings.EqualFold(u.State, "active")
	}
	for _, c := range u.Addresses {
		if !strings.EqualFold(c.MediaType, "PHONE") {
			continue
		}
		number := c.Address
		if number == "" {
			number = c.Extension
		}
		r.SetPhone(phoneType(c.Type), number)
	}
	if u.Division != nil {
		r.Set(FieldDivision, u.Division.Name)
	}
	if u.Presence != nil {
		r.Set(FieldPresence, u.Presence.PresenceDefinition.SystemPresence)
	}
	if u.RoutingStatus != nil {
		r.Set(FieldRoutingStatus, u.RoutingStatus.Status)
	}
	return r
}

func phoneType(t string) string {
	switch strings.ToUpper(t) {
	case "WORK", "WORK2", "WORK3", "WORK4":
		return domain.PhoneWork
	case "MOBILE":
		return domain.PhoneMobile
	case "HOME":
		return domain.PhoneHome
	default:
		return domain.PhoneOther
	}
}
