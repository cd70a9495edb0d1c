// Package graph searches the cloud identity graph's /users API.
package graph

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"peoplefinder/internal/search/domain"
	"peoplefinder/internal/search/providers"
	"peoplefinder/internal/search/providers/restclient"
)

const userFields = "id,displayName,mail,userPrincipalName,givenName,surname,jobTitle,department," +
	"businessPhones,mobilePhone,accountEnabled,employeeId,officeLocation"

// Config holds the graph API settings.
type Config struct {
	BaseURL    string
	Limit      int
	LazyPhotos bool
}

// Backend implements providers.Backend over the graph REST API.
type Backend struct {
	cfg    Config
	client *restclient.Client
}

// New builds the graph backend. tokens supplies the bearer token for every call.
func New(cfg Config, httpClient *http.Client, tokens providers.TokenProvider) (*Backend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("graph base URL is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("graph token provider is required")
	}
	return &Backend{
		cfg:    cfg,
		client: restclient.New(providers.Graph, cfg.BaseURL, httpClient, tokens),
	}, nil
}

type user struct {
	ID                string   `json:"id"`
	DisplayName       string   `json:"displayName"`
	Mail              string   `json:"mail"`
	UserPrincipalName string   `json:"userPrincipalName"`
	GivenName         string   `json:"givenName"`
	Surname           string   `json:"surname"`
	JobTitle          string   `json:"jobTitle"`
	Department        string   `json:"department"`
	BusinessPhones    []string `json:"businessPhones"`
	MobilePhone       string   `json:"mobilePhone"`
	AccountEnabled    *bool    `json:"accountEnabled"`
	EmployeeID        string   `json:"employeeId"`
	OfficeLocation    string   `json:"officeLocation"`
}

type userPage struct {
	Count *int   `json:"@odata.count"`
	Value []user `json:"value"`
}

func (b *Backend) Name() string { return providers.Graph }

// Search uses an exact $filter for addresses and an eventual-consistency
// $search on display name otherwise.
func (b *Backend) Search(ctx context.Context, term string) (domain.Outcome, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return domain.Absent(), nil
	}

	query := url.Values{}
	query.Set("$select", userFields)
	if b.cfg.Limit > 0 {
		query.Set("$top", strconv.Itoa(b.cfg.Limit+1))
	}
	header := http.Header{}
	if strings.Contains(term, "@") {
		quoted := strings.ReplaceAll(term, "'", "''")
		query.Set("$filter", fmt.Sprintf("mail eq '%s' or userPrincipalName eq '%s'", quoted, quoted))
	} else {
		query.Set("$search", fmt.Sprintf(`"displayName:%s"`, strings.ReplaceAll(term, `"`, "")))
		query.Set("$count", "true")
		header.Set("ConsistencyLevel", "eventual")
	}

	var page userPage
	if _, err := b.client.DoJSON(ctx, restclient.Request{
		Method: http.MethodGet,
		Path:   "/users",
		Query:  query,
		Header: header,
	}, &page); err != nil {
		return domain.Outcome{}, err
	}

	if b.cfg.Limit > 0 && page.Count != nil && *page.Count > b.cfg.Limit {
		return domain.Outcome{}, providers.TooManyResults(b.Name(), b.cfg.Limit)
	}

	records := make([]domain.Record, 0, len(page.Value))
	for _, u := range page.Value {
		records = append(records, toRecord(u))
	}
	outcome, err := providers.Classify(b.Name(), records, b.cfg.Limit)
	if err != nil || outcome.Kind() != domain.OutcomeFound {
		return outcome, err
	}
	b.attachPhoto(ctx, outcome.Record())
	return outcome, nil
}

// FetchByID reads /users/{id}.
func (b *Backend) FetchByID(ctx context.Context, id string) (domain.Record, error) {
	if id == "" {
		return nil, nil
	}
	var u user
	res, err := b.client.DoJSON(ctx, restclient.Request{
		Method:   http.MethodGet,
		Path:     "/users/" + url.PathEscape(id),
		Query:    url.Values{"$select": {userFields}},
		Allow404: true,
	}, &u)
	if err != nil {
		return nil, err
	}
	if res.NotFound() {
		return nil, nil
	}
	r := toRecord(u)
	b.attachPhoto(ctx, r)
	return r, nil
}

// Photo downloads the user's profile photo.
func (b *Backend) Photo(ctx context.Context, id string) ([]byte, string, error) {
	res, err := b.client.Do(ctx, restclient.Request{
		Method:   http.MethodGet,
		Path:     "/users/" + url.PathEscape(id) + "/photo/$value",
		Accept:   "image/*",
		Allow404: true,
	})
	if err != nil || res.NotFound() {
		return nil, "", err
	}
	contentType := res.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return res.Body, contentType, nil
}

// TestConnection lists a single user.
func (b *Backend) TestConnection(ctx context.Context) error {
	_, err := b.client.Do(ctx, restclient.Request{
		Method: http.MethodGet,
		Path:   "/users",
		Query:  url.Values{"$top": {"1"}, "$select": {"id"}},
	})
	return err
}

// attachPhoto adds the photo, or only a reference in lazy mode. A missing or
// unreadable photo leaves the record as is.
func (b *Backend) attachPhoto(ctx context.Context, r domain.Record) {
	id := r.ID()
	if id == "" {
		return
	}
	if b.cfg.LazyPhotos {
		res, err := b.client.Do(ctx, restclient.Request{
			Method:   http.MethodGet,
			Path:     "/users/" + url.PathEscape(id) + "/photo",
			Allow404: true,
		})
		if err == nil && !res.NotFound() {
			r[domain.FieldHasPhoto] = true
		}
		return
	}
	data, contentType, err := b.Photo(ctx, id)
	if err != nil || len(data) == 0 {
		return
	}
	r[domain.FieldPhoto] = "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func toRecord(u user) domain.Record {
	r := domain.Record{domain.FieldID: u.ID}
	r.Set(domain.FieldDisplayName, u.DisplayName)
	r.Set(domain.FieldEmail, u.Mail)
	r.Set(domain.FieldUserPrincipalName, u.UserPrincipalName)
	r.Set(domain.FieldGivenName, u.GivenName)
	r.Set(domain.FieldFamilyName, u.Surname)
	r.Set(domain.FieldJobTitle, u.JobTitle)
	r.Set(domain.FieldDepartment, u.Department)
	r.Set(domain.FieldEmployeeID, u.EmployeeID)
	r.Set("officeLocation", u.OfficeLocation)
	if len(u.BusinessPhones) > 0 {
		r.SetPhone(domain.PhoneBusiness, u.BusinessPhones[0])
	}
	r.SetPhone(domain.PhoneMobile, u.MobilePhone)
	if u.AccountEnabled != nil {
		r[domain.FieldAccountEnabled] = *u.AccountEnabled
	}
	return r
}
