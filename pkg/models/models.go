package models

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind distinguishes timeline targets from search targets
type Kind string

const (
	KindUser  Kind = "timeline"
	KindQuery Kind = "search"
)

// Target is one unit of crawl work: an account timeline or a standing search.
// The JSON shape matches the progress files.
type Target struct {
	ID   string `json:"-"`
	Kind Kind   `json:"-"`

	UserID int64 `json:"user_id,omitempty"`

	Terms          []string `json:"terms,omitempty"`
	Query          string   `json:"querystring,omitempty"`
	OutputFilename string   `json:"output_filename,omitempty"`
	Lang           string   `json:"lang,omitempty"`
	Geocode        string   `json:"geocode,omitempty"`

	SinceID int64 `json:"since_id"`
	Removed bool  `json:"remove"`

	// Extra keeps progress file keys this type does not model, so they
	// survive a load and commit
	Extra map[string]json.RawMessage `json:"-"`
}

// targetFields are the progress file keys mapped onto Target fields
var targetFields = []string{
	"user_id", "terms", "querystring", "output_filename",
	"lang", "geocode", "since_id", "remove",
}

// UnmarshalJSON decodes the known fields and stashes the rest in Extra
func (t *Target) UnmarshalJSON(data []byte) error {
	type plain Target
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range targetFields {
		delete(all, k)
	}
	p.Extra = nil
	if len(all) > 0 {
		p.Extra = all
	}
	p.ID, p.Kind = t.ID, t.Kind
	*t = Target(p)
	return nil
}

// MarshalJSON writes the known fields merged with Extra. Known fields win.
func (t Target) MarshalJSON() ([]byte, error) {
	type plain Target
	data, err := json.Marshal(plain(t))
	if err != nil || len(t.Extra) == 0 {
		return data, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, v := range t.Extra {
		if _, known := all[k]; !known {
			all[k] = v
		}
	}
	return json.Marshal(all)
}

// Record is one post as returned by the platform
type Record struct {
	ID  int64
	Raw json.RawMessage
}

// QueryString returns the stored query, or builds `"a" OR "b"` from the lowercased terms
func (t Target) QueryString() string {
	if t.Query != "" {
		return t.Query
	}
	return BuildQuery(t.Terms)
}

// OutputName is the file name raw records are appended to
func (t Target) OutputName() string {
	switch t.Kind {
	case KindUser:
		if t.UserID != 0 {
			return strconv.FormatInt(t.UserID, 10)
		}
		return t.ID
	default:
		if t.OutputFilename != "" {
			return t.OutputFilename
		}
		return QueryHash(t.QueryString())
	}
}

// Validate reports targets that cannot be crawled
func (t Target) Validate() error {
	switch t.Kind {
	case KindUser:
		if t.UserID == 0 {
			if _, err := strconv.ParseInt(t.ID, 10, 64); err != nil {
				return fmt.Errorf("target %q: missing user_id", t.ID)
			}
		}
	case KindQuery:
		if t.QueryString() == "" {
			return fmt.Errorf("target %q: no terms or querystring", t.ID)
		}
	default:
		return fmt.Errorf("target %q: unknown kind %q", t.ID, t.Kind)
	}
	if t.SinceID < 0 {
		return fmt.Errorf("target %q: negative since_id", t.ID)
	}
	return nil
}

// TimelineUserID returns the account id, falling back to a numeric map key
func (t Target) TimelineUserID() int64 {
	if t.UserID != 0 {
		return t.UserID
	}
	id, _ := strconv.ParseInt(t.ID, 10, 64)
	return id
}

// BuildQuery joins terms as quoted, lowercased OR clauses
func BuildQuery(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		quoted = append(quoted, `"`+strings.ToLower(term)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// QueryHash is the hex md5 of a query string
func QueryHash(query string) string {
	sum := md5.Sum([]byte(query))
	return hex.EncodeToString(sum[:])
}
