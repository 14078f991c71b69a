// Package directory resolves which approval roles a user holds.
package directory

import (
	"context"
	"sort"
	"strings"
)

// StaticDirectory serves roles from configuration. Unknown users hold no roles.
type StaticDirectory struct {
	roles map[string][]string
}

func NewStaticDirectory(users map[string][]string) *StaticDirectory {
	roles := make(map[string][]string, len(users))
	for user, rs := range users {
		user = strings.TrimSpace(user)
		if user == "" {
			continue
		}
		roles[user] = normalize(rs)
	}
	return &StaticDirectory{roles: roles}
}

func (d *StaticDirectory) RolesOf(_ context.Context, userID string) ([]string, error) {
	return append([]string{}, d.roles[userID]...), nil
}

// Users returns the configured user ids in lexical order.
func (d *StaticDirectory) Users() []string {
	users := make([]string, 0, len(d.roles))
	for user := range d.roles {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}

// normalize trims, drops blanks and removes duplicates while keeping order.
func normalize(roles []string) []string {
	seen := make(map[string]bool, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
