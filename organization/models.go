// Package organization defines the tenant entity usage is metered for.
package organization

import (
	"strings"
	"unicode"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/types"
)

// Organization is a tenant. Its identity never changes after creation.
type Organization struct {
	types.Entity
	ID   id.OrgID `json:"id"`
	Name string   `json:"name"`
	Slug string   `json:"slug"`
}

// Slugify derives a URL-safe slug: lowercase, every run of characters
// other than ASCII letters and digits collapsed to "-", no leading or
// trailing dash.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	dash := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
