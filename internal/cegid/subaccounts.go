package cegid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	subaccountPageSize = 500
	subaccountMaxPages = 200
)

// Session is a snapshot of the company's sub-accounts.
//
// It is populated once, under mu, the first time a lookup needs it and is
// read-only afterwards. Codes created during the session are not added;
// replace the session to see them.
type Session struct {
	mu     sync.Mutex
	loaded atomic.Bool
	load   func(ctx context.Context) ([]Subaccount, error)

	clients   []indexedSubaccount
	suppliers []indexedSubaccount

	allocMu sync.Mutex
	next    map[AccountClass]int64
}

type indexedSubaccount struct {
	code  string
	tax   string
	name  string
	digit int64
}

func newSession(load func(ctx context.Context) ([]Subaccount, error)) *Session {
	return &Session{load: load, next: make(map[AccountClass]int64)}
}

func (s *Session) ensure(ctx context.Context) error {
	if s.loaded.Load() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded.Load() {
		return nil
	}
	items, err := s.load(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		code := item.Code()
		if code == "" {
			continue
		}
		idx := indexedSubaccount{
			code: code,
			tax:  NormalizeTaxID(item.TaxID()),
			name: NormalizeName(item.Descripcion),
		}
		idx.digit, _ = strconv.ParseInt(code, 10, 64)
		switch {
		case hasAnyPrefix(code, ClassClient.Prefixes()):
			s.clients = append(s.clients, idx)
		case hasAnyPrefix(code, ClassSupplier.Prefixes()):
			s.suppliers = append(s.suppliers, idx)
		}
	}
	s.loaded.Store(true)
	return nil
}

func (s *Session) class(class AccountClass) []indexedSubaccount {
	if class == ClassClient {
		return s.clients
	}
	return s.suppliers
}

// Lookup searches by tax id, then by name prefix, then by name substring.
func (s *Session) Lookup(ctx context.Context, taxID, name string, class AccountClass) (string, error) {
	if class != ClassClient && class != ClassSupplier {
		return "", ErrInvalidClass
	}
	if err := s.ensure(ctx); err != nil {
		return "", err
	}
	entries := s.class(class)

	if tax := NormalizeTaxID(taxID); tax != "" {
		for _, e := range entries {
			if e.tax == tax {
				return e.code, nil
			}
		}
	}

	needle := NormalizeName(name)
	if needle == "" {
		return "", nil
	}
	for _, e := range entries {
		if strings.HasPrefix(e.name, needle) {
			return e.code, nil
		}
	}
	for _, e := range entries {
		if strings.Contains(e.name, needle) {
			return e.code, nil
		}
	}
	return "", nil
}

// nextCandidate returns the next code to try for class. The first call starts
// after the highest code of the class range seen in the snapshot, or after
// base+offset, whichever is larger.
func (s *Session) nextCandidate(class AccountClass, offset int64) int64 {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()
	if next, ok := s.next[class]; ok {
		s.next[class] = next + 1
		return next
	}
	base := class.baseCode()
	start := base + offset
	prefix := strconv.FormatInt(base, 10)[:2]
	for _, e := range s.class(class) {
		if strings.HasPrefix(e.code, prefix) && len(e.code) == 8 && e.digit > start {
			start = e.digit
		}
	}
	s.next[class] = start + 2
	return start + 1
}

// Session returns the current snapshot session, creating it on first use.
func (c *Client) Session() *Session {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.session == nil {
		c.session = newSession(c.listSubaccounts)
	}
	return c.session
}

// SearchSubaccount resolves a sub-account code for the given tax id and name
// within class. An empty code without error means no match.
func (c *Client) SearchSubaccount(ctx context.Context, taxID, name string, class AccountClass) (string, error) {
	code, err := c.Session().Lookup(ctx, taxID, name, class)
	if err != nil {
		return "", err
	}
	return code, nil
}

// CreateSubaccount allocates a new code in the class range and creates the
// sub-account, moving to the next code when the candidate is already taken.
func (c *Client) CreateSubaccount(ctx context.Context, req SubaccountRequest) (string, error) {
	if req.Class != ClassClient && req.Class != ClassSupplier {
		return "", ErrInvalidClass
	}
	session := c.Session()
	if err := session.ensure(ctx); err != nil {
		return "", err
	}

	tries := c.subaccountTries
	if tries <= 0 {
		tries = defaultSubaccountTries
	}
	var lastErr error
	for attempt := 1; attempt <= tries; attempt++ {
		code := formatCode(session.nextCandidate(req.Class, c.subaccountOffset))
		err := c.createSubaccount(ctx, code, req)
		if err == nil {
			c.metrics.RecordSubaccountCreated(ctx, req.Class.String())
			c.log.Info("cegid.subaccount.created",
				zap.String("code", code),
				zap.String("class", req.Class.String()),
				zap.Int("attempt", attempt),
			)
			return code, nil
		}
		if !errors.Is(err, ErrCodeExists) {
			return "", err
		}
		lastErr = err
		c.log.Debug("cegid.subaccount.code_taken", zap.String("code", code), zap.Int("attempt", attempt))
	}
	return "", fmt.Errorf("%w after %d attempts: %v", ErrSubaccountExhausted, tries, lastErr)
}

func (c *Client) createSubaccount(ctx context.Context, code string, req SubaccountRequest) error {
	body := subaccountBody{
		Codigo:       code,
		Descripcion:  truncateRunes(strings.TrimSpace(req.Name), 100),
		NIF:          strings.TrimSpace(req.TaxID),
		Email:        strings.TrimSpace(req.Email),
		Telefono:     strings.TrimSpace(req.Phone),
		Direccion:    strings.TrimSpace(req.Address),
		CodigoPostal: strings.TrimSpace(req.PostalCode),
		Poblacion:    strings.TrimSpace(req.City),
		Provincia:    strings.TrimSpace(req.Province),
		Pais:         strings.TrimSpace(req.Country),
	}
	const path = "/api/subcuentas/add"
	resp, err := c.do(ctx, http.MethodPost, path, "subcuentas.add", body)
	if err != nil {
		return err
	}
	if resp.ok() {
		return nil
	}
	if isCodeExistsResponse(string(resp.body)) {
		return ErrCodeExists
	}
	return resp.apiError(path)
}

func (c *Client) listSubaccounts(ctx context.Context) ([]Subaccount, error) {
	var all []Subaccount
	seen := make(map[string]struct{})
	for page := 0; page < subaccountMaxPages; page++ {
		path := fmt.Sprintf("/api/subcuentas?$top=%d&$skip=%d", subaccountPageSize, page*subaccountPageSize)
		resp, err := c.do(ctx, http.MethodGet, path, "subcuentas.list", nil)
		if err != nil {
			return nil, err
		}
		if !resp.ok() {
			return nil, resp.apiError("/api/subcuentas")
		}
		var env datosEnvelope[Subaccount]
		if err := json.Unmarshal(resp.body, &env); err != nil {
			return nil, fmt.Errorf("%w: subcuentas: %v", ErrInvalidResponse, err)
		}
		items := env.items()
		fresh := 0
		for _, item := range items {
			if _, dup := seen[item.Code()]; dup {
				continue
			}
			seen[item.Code()] = struct{}{}
			all = append(all, item)
			fresh++
		}
		if fresh == 0 || len(items) < subaccountPageSize {
			break
		}
	}
	c.log.Info("cegid.subaccounts.loaded", zap.Int("count", len(all)))
	return all, nil
}

// NormalizeTaxID keeps ASCII letters and digits, uppercased.
func NormalizeTaxID(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeName strips diacritics, folds case and collapses whitespace.
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// NormalizeAccountCode brings a numeric code to 8 digits. A 13-digit code
// with five zeros after its 2-digit prefix loses those zeros; other long codes
// keep their last 8 digits; short codes are left-padded with zeros.
// Non-numeric codes are returned trimmed but otherwise unchanged.
func NormalizeAccountCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || !isDigits(code) {
		return code
	}
	switch {
	case len(code) == 13 && code[2:7] == "00000":
		return code[:2] + code[7:]
	case len(code) > 8:
		return code[len(code)-8:]
	case len(code) < 8:
		return strings.Repeat("0", 8-len(code)) + code
	default:
		return code
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
