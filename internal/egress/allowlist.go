package egress

import "strings"

// Allowlist is a default-deny set of permitted destination hostnames.
// Matching is by exact host or dot-boundary suffix, so "supabase.co"
// admits "api.supabase.co" but not "evilsupabase.co".
type Allowlist []string

// DefaultAllowlist covers the provider APIs and docs the automation worker
// legitimately needs.
var DefaultAllowlist = Allowlist{
	"api.github.com",
	"github.com",
	"api.vercel.com",
	"vercel.com",
	"api.supabase.com",
	"supabase.co",
	"supabase.com",
	"api.stripe.com",
	"docs.stripe.com",
}

func (a Allowlist) Allows(host string) bool {
	host = strings.ToLower(host)
	for _, entry := range a {
		entry = strings.ToLower(entry)
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}
