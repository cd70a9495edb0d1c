// Package directory searches an LDAP / Active Directory tree.
package directory

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-ldap/ldap/v3"

	"peoplefinder/internal/search/domain"
	"peoplefinder/internal/search/providers"
)

// Conn is the part of *ldap.Conn the adapter uses.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

// Dialer opens a connection and returns a func that closes it.
type Dialer func(ctx context.Context) (Conn, func(), error)

// Config holds the directory connection settings.
type Config struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
	Timeout      time.Duration
	Limit        int
	LazyPhotos   bool
}

// Backend implements providers.Backend over LDAP.
type Backend struct {
	cfg  Config
	dial Dialer
}

type Option func(*Backend)

// WithDialer replaces the network dialer, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(b *Backend) {
		b.dial = d
	}
}

var attributes = []string{
	"displayName", "mail", "userPrincipalName", "sAMAccountName", "givenName", "sn",
	"title", "department", "manager", "telephoneNumber", "mobile", "ipPhone", "homePhone",
	"employeeID", "userAccountControl", "thumbnailPhoto",
}

const uacAccountDisabled = 0x2

// New builds the directory backend.
func New(cfg Config, opts ...Option) (*Backend, error) {
	if cfg.BaseDN == "" {
		return nil, fmt.Errorf("directory base DN is required")
	}
	b := &Backend{cfg: cfg}
	for _, opt := range opts {
		opt(b)
	}
	if b.dial == nil {
		if cfg.URL == "" {
			return nil, fmt.Errorf("directory URL is required")
		}
		b.dial = DialURL(cfg.URL, cfg.Timeout)
	}
	return b, nil
}

// DialURL dials url with go-ldap, bounding connect and per-operation time.
func DialURL(url string, timeout time.Duration) Dialer {
	return func(ctx context.Context) (Conn, func(), error) {
		c, err := ldap.DialURL(url, ldap.DialWithDialer(&net.Dialer{Timeout: timeout}))
		if err != nil {
			return nil, nil, err
		}
		if timeout > 0 {
			c.SetTimeout(timeout)
		}
		return c, func() { c.Close() }, nil
	}
}

func (b *Backend) Name() string { return providers.Directory }

// Search matches term against mail/UPN when it looks like an address, against
// phone attributes when it is all digits, and against account and display
// names otherwise.
func (b *Backend) Search(ctx context.Context, term string) (domain.Outcome, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return domain.Absent(), nil
	}

	req := ldap.NewSearchRequest(
		b.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		b.sizeLimit(), b.timeLimit(), false,
		searchFilter(term),
		b.attributes(),
		nil,
	)

	var entries []*ldap.Entry
	err := b.withConn(ctx, func(conn Conn) error {
		res, err := conn.Search(req)
		if ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
			return providers.TooManyResults(b.Name(), b.cfg.Limit)
		}
		if err != nil {
			return err
		}
		entries = res.Entries
		return nil
	})
	if err != nil {
		return domain.Outcome{}, b.wrap(ctx, "search", err)
	}

	records := make([]domain.Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, b.toRecord(e))
	}
	return providers.Classify(b.Name(), records, b.cfg.Limit)
}

// FetchByID reads the entry whose distinguished name is id.
func (b *Backend) FetchByID(ctx context.Context, id string) (domain.Record, error) {
	entry, err := b.readEntry(ctx, id, b.attributes())
	if err != nil || entry == nil {
		return nil, err
	}
	return b.toRecord(entry), nil
}

// Photo returns the raw thumbnailPhoto of the entry.
func (b *Backend) Photo(ctx context.Context, id string) ([]byte, string, error) {
	entry, err := b.readEntry(ctx, id, []string{"thumbnailPhoto"})
	if err != nil {
		return nil, "", err
	}
	if entry == nil {
		return nil, "", nil
	}
	data := entry.GetRawAttributeValue("thumbnailPhoto")
	if len(data) == 0 {
		return nil, "", nil
	}
	return data, "image/jpeg", nil
}

// TestConnection binds with the service account.
func (b *Backend) TestConnection(ctx context.Context) error {
	if err := b.withConn(ctx, func(Conn) error { return nil }); err != nil {
		return b.wrap(ctx, "bind", err)
	}
	return nil
}

func (b *Backend) readEntry(ctx context.Context, dn string, attrs []string) (*ldap.Entry, error) {
	if dn == "" {
		return nil, nil
	}
	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject, ldap.NeverDerefAliases,
		1, b.timeLimit(), false,
		"(objectClass=*)",
		attrs,
		nil,
	)
	var entry *ldap.Entry
	err := b.withConn(ctx, func(conn Conn) error {
		res, err := conn.Search(req)
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(res.Entries) > 0 {
			entry = res.Entries[0]
		}
		return nil
	})
	if err != nil {
		return nil, b.wrap(ctx, "fetch", err)
	}
	return entry, nil
}

// withConn dials, binds and runs fn. The connection is closed as soon as ctx
// is done so a blocked read returns instead of outliving the caller.
func (b *Backend) withConn(ctx context.Context, fn func(Conn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, closeConn, err := b.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	stop := context.AfterFunc(ctx, closeConn)
	defer func() {
		if stop() {
			closeConn()
		}
	}()

	if b.cfg.BindDN != "" {
		if err := conn.Bind(b.cfg.BindDN, b.cfg.BindPassword); err != nil {
			return fmt.Errorf("bind: %w", err)
		}
	}
	return fn(conn)
}

func (b *Backend) wrap(ctx context.Context, op string, err error) error {
	var pe *providers.ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return providers.NewProviderError(providers.ErrorTimeout, b.Name(), op+" interrupted", ctxErr)
	}
	return providers.NewProviderError(providers.ErrorBackend, b.Name(), op+" failed", err)
}

func (b *Backend) sizeLimit() int {
	if b.cfg.Limit <= 0 {
		return 0
	}
	return b.cfg.Limit + 1
}

func (b *Backend) timeLimit() int {
	return int(b.cfg.Timeout.Seconds())
}

func (b *Backend) attributes() []string {
	return attributes
}

func searchFilter(term string) string {
	escaped := ldap.EscapeFilter(term)
	switch {
	case strings.Contains(term, "@"):
		return fmt.Sprintf("(&(objectCategory=person)(objectClass=user)(|(mail=%s)(userPrincipalName=%s)(proxyAddresses=smtp:%s)))",
			escaped, escaped, escaped)
	case isPhoneNumber(term):
		digits := ldap.EscapeFilter(strings.TrimPrefix(term, "+"))
		return fmt.Sprintf("(&(objectCategory=person)(objectClass=user)(|(telephoneNumber=*%s)(mobile=*%s)(ipPhone=%s)))",
			digits, digits, digits)
	default:
		return fmt.Sprintf("(&(objectCategory=person)(objectClass=user)(|(sAMAccountName=%s)(displayName=%s*)(cn=%s*)))",
			escaped, escaped, escaped)
	}
}

func isPhoneNumber(term string) bool {
	digits := 0
	for _, r := range strings.TrimPrefix(term, "+") {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits >= 4
}

func (b *Backend) toRecord(e *ldap.Entry) domain.Record {
	r := domain.Record{domain.FieldID: e.DN}
	r.Set(domain.FieldDisplayName, e.GetAttributeValue("displayName"))
	r.Set(domain.FieldEmail, e.GetAttributeValue("mail"))
	r.Set(domain.FieldUserPrincipalName, e.GetAttributeValue("userPrincipalName"))
	r.Set(domain.FieldUsername, e.GetAttributeValue("sAMAccountName"))
	r.Set(domain.FieldGivenName, e.GetAttributeValue("givenName"))
	r.Set(domain.FieldFamilyName, e.GetAttributeValue("sn"))
	r.Set(domain.FieldJobTitle, e.GetAttributeValue("title"))
	r.Set(domain.FieldDepartment, e.GetAttributeValue("department"))
	r.Set(domain.FieldManager, commonName(e.GetAttributeValue("manager")))
	r.Set(domain.FieldEmployeeID, e.GetAttributeValue("employeeID"))
	r.SetPhone(domain.PhoneBusiness, e.GetAttributeValue("telephoneNumber"))
	r.SetPhone(domain.PhoneMobile, e.GetAttributeValue("mobile"))
	r.SetPhone(domain.PhoneIP, e.GetAttributeValue("ipPhone"))
	r.SetPhone(domain.PhoneHome, e.GetAttributeValue("homePhone"))

	if uac := e.GetAttributeValue("userAccountControl"); uac != "" {
		if flags, err := strconv.ParseInt(uac, 10, 64); err == nil {
			r[domain.FieldAccountEnabled] = flags&uacAccountDisabled == 0
		}
	}

	if photo := e.GetRawAttributeValue("thumbnailPhoto"); len(photo) > 0 {
		if b.cfg.LazyPhotos {
			r[domain.FieldHasPhoto] = true
		} else {
			r[domain.FieldPhoto] = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(photo)
		}
	}
	return r
}

// commonName reduces a DN such as "CN=Bob Jones,OU=Staff,DC=corp" to "Bob Jones".
func commonName(dn string) string {
	if dn == "" {
		return ""
	}
	parsed, err := ldap.ParseDN(dn)
	if err != nil || len(parsed.RDNs) == 0 {
		return dn
	}
	for _, attr := range parsed.RDNs[0].Attributes {
		if strings.EqualFold(attr.Type, "CN") {
			return attr.Value
		}
	}
	return dn
}
