// Package credentials maps region codes to VAN API credentials.
package credentials

import (
	"sort"
	"strings"

	"github.com/upb/ak-van-sync/config"
	"github.com/upb/ak-van-sync/models"
)

// Resolver is a read-only lookup of region credentials
type Resolver struct {
	regions map[string]models.RegionCredentials
}

// NewResolver builds a resolver from configured regions. Regions with an
// empty key are left out, so they resolve as absent. defaultApp fills in the
// app name for regions that do not set their own.
func NewResolver(regions map[string]config.RegionConfig, defaultApp string) *Resolver {
	r := &Resolver{regions: make(map[string]models.RegionCredentials, len(regions))}
	for code, rc := range regions {
		code = normalize(code)
		if code == "" || strings.TrimSpace(rc.APIKey) == "" {
			continue
		}
		app := rc.AppName
		if app == "" {
			app = defaultApp
		}
		r.regions[code] = models.RegionCredentials{
			Region:  code,
			AppName: app,
			APIKey:  strings.TrimSpace(rc.APIKey),
		}
	}
	return r
}

// Resolve returns the credentials for a region. ok is false when the region
// has none, in which case callers skip it.
func (r *Resolver) Resolve(region string) (creds models.RegionCredentials, ok bool) {
	creds, ok = r.regions[normalize(region)]
	return creds, ok
}

// Regions returns the configured region codes in sorted order
func (r *Resolver) Regions() []string {
	codes := make([]string, 0, len(r.regions))
	for code := range r.regions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func normalize(region string) string {
	return strings.ToUpper(strings.TrimSpace(region))
}
