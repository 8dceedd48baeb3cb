// Package workspace holds the typed models and endpoint helpers of the
// workspace REST API, plus the client-side transforms the views apply to
// them.
package workspace

import (
	"cmp"
	"context"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/Keksclan/rawrFetch/apiclient"
	"github.com/Keksclan/rawrFetch/cachekey"
)

// Resource names used as cache key prefixes.
const (
	ResourceCompanies     = "companies"
	ResourceDashboard     = "dashboard-layout"
	ResourceNotifications = "notifications-grouped"
)

// StatusAll matches companies of every status.
const StatusAll = "all"

// Company is one tenant as listed by the admin API.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Plan      string    `json:"plan,omitempty"`
	UserCount int       `json:"userCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// CompanyFilter narrows the company list. Empty fields are not sent.
type CompanyFilter struct {
	Search string
	Status string
}

// Params returns the cache key parameters for f.
func (f CompanyFilter) Params() cachekey.Params {
	return cachekey.Params{}.
		SetNonZero("search", strings.TrimSpace(f.Search)).
		SetNonZero("status", f.Status)
}

// Key returns the cache key for the company list selected by f.
func (f CompanyFilter) Key() string { return f.Params().Key(ResourceCompanies) }

// Query returns the URL query for f.
func (f CompanyFilter) Query() url.Values {
	q := url.Values{}
	if s := strings.TrimSpace(f.Search); s != "" {
		q.Set("search", s)
	}
	if f.Status != "" && f.Status != StatusAll {
		q.Set("status", f.Status)
	}
	return q
}

// Companies fetches GET /admin/companies.
func Companies(ctx context.Context, api *apiclient.Client, f CompanyFilter) ([]Company, error) {
	return apiclient.GetJSON[[]Company](ctx, api, "/admin/companies", f.Query())
}

// FilterCompanies returns the companies whose name or ID contains search
// (case-insensitive) and whose status equals status. An empty status or
// [StatusAll] matches every status.
func FilterCompanies(items []Company, search, status string) []Company {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]Company, 0, len(items))
	for _, c := range items {
		if status != "" && status != StatusAll && !strings.EqualFold(c.Status, status) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.ID), search) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SortField selects the column [SortCompanies] orders by.
type SortField string

const (
	SortByName      SortField = "name"
	SortByStatus    SortField = "status"
	SortByUsers     SortField = "users"
	SortByCreatedAt SortField = "createdAt"
)

// SortCompanies returns a sorted copy of items. Equal keys keep their input
// order. Unknown fields sort by name.
func SortCompanies(items []Company, field SortField, desc bool) []Company {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b Company) int {
		var c int
		switch field {
		case SortByStatus:
			c = cmp.Compare(a.Status, b.Status)
		case SortByUsers:
			c = cmp.Compare(a.UserCount, b.UserCount)
		case SortByCreatedAt:
			c = a.CreatedAt.Compare(b.CreatedAt)
		default:
			c = cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
		if desc {
			return -c
		}
		return c
	})
	return out
}
