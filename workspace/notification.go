package workspace

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/Keksclan/rawrFetch/apiclient"
)

// Notification is a single inbox item.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationGroup is a set of notifications sharing a type or a day.
type NotificationGroup struct {
	Key    string         `json:"key"`
	Items  []Notification `json:"items"`
	Unread int            `json:"unread"`
	Latest time.Time      `json:"latest"`
}

// GroupBy selects how [GroupNotifications] buckets items.
type GroupBy int

const (
	ByType GroupBy = iota
	ByDay
)

// GroupedNotifications fetches GET /notifications/grouped, which the server
// already groups by type.
func GroupedNotifications(ctx context.Context, api *apiclient.Client) ([]NotificationGroup, error) {
	return apiclient.GetJSON[[]NotificationGroup](ctx, api, "/notifications/grouped", nil)
}

// GroupNotifications buckets items by type or by UTC day ("2006-01-02").
// Items inside a group and the groups themselves are ordered newest first;
// groups with the same latest time are ordered by key.
func GroupNotifications(items []Notification, by GroupBy) []NotificationGroup {
	index := make(map[string]int)
	var groups []NotificationGroup

	for _, n := range items {
		key := n.Type
		if by == ByDay {
			key = n.CreatedAt.UTC().Format(time.DateOnly)
		}

		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, NotificationGroup{Key: key})
		}
		g := &groups[i]
		g.Items = append(g.Items, n)
		if !n.Read {
			g.Unread++
		}
		if n.CreatedAt.After(g.Latest) {
			g.Latest = n.CreatedAt
		}
	}

	for i := range groups {
		slices.SortStableFunc(groups[i].Items, func(a, b Notification) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	}
	slices.SortFunc(groups, func(a, b NotificationGroup) int {
		if c := b.Latest.Compare(a.Latest); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return groups
}

// UnreadCount sums the unread counters of groups.
func UnreadCount(groups []NotificationGroup) int {
	total := 0
	for _, g := range groups {
		total += g.Unread
	}
	return total
}
