// Package albumfilter implements Component F: resolving the configured
// include/exclude rules against the albums CloudSession discovered this
// cycle.
//
// Grounded on the teacher's internal/sync/filter.go allow/deny resolution
// shape, generalized from a single include-pattern list to the two-kind
// (personal/shared) allowlist-or-all policy spec.md §4.F describes.
package albumfilter

import (
	"errors"
	"fmt"
	"sort"

	"github.com/HenningUe/icloud-sync-go/internal/icloud"
)

// ErrConfiguredAlbumMissing means a name in an allowlist does not match
// any album CloudSession actually returned this cycle. Fatal for the
// cycle, per spec.md §4.F.
var ErrConfiguredAlbumMissing = errors.New("albumfilter: configured album not found")

// Options mirrors the subset of config.Config spec.md §4.F consumes.
type Options struct {
	IncludePersonal   bool
	IncludeShared     bool
	PersonalAllowlist []string
	SharedAllowlist   []string
}

// Resolve applies spec.md §4.F's three ordered rules and returns the
// selected albums in deterministic (kind, name) ascending order — the
// iteration order spec.md §4.G's cycle algorithm and §5's ordering
// guarantee require.
func Resolve(opts Options, discovered []icloud.Album) ([]icloud.Album, error) {
	var selected []icloud.Album

	personal := filterByKind(discovered, icloud.AlbumPersonal)
	shared := filterByKind(discovered, icloud.AlbumShared)

	if opts.IncludePersonal {
		kept, err := applyAllowlist(personal, opts.PersonalAllowlist)
		if err != nil {
			return nil, err
		}

		selected = append(selected, kept...)
	}

	if opts.IncludeShared {
		kept, err := applyAllowlist(shared, opts.SharedAllowlist)
		if err != nil {
			return nil, err
		}

		selected = append(selected, kept...)
	}

	sort.Slice(selected, func(i, j int) bool {
		if selected[i].Kind != selected[j].Kind {
			return selected[i].Kind < selected[j].Kind
		}

		return selected[i].Name < selected[j].Name
	})

	return selected, nil
}

func filterByKind(albums []icloud.Album, kind icloud.AlbumKind) []icloud.Album {
	var out []icloud.Album

	for _, a := range albums {
		if a.Kind == kind {
			out = append(out, a)
		}
	}

	return out
}

// applyAllowlist returns every album in kindAlbums when allowlist is
// empty ("all"); otherwise it returns exactly the albums named in
// allowlist, failing with ErrConfiguredAlbumMissing if any configured
// name has no match — case-sensitive, whole-name equality, per spec.md
// §4.F.
func applyAllowlist(kindAlbums []icloud.Album, allowlist []string) ([]icloud.Album, error) {
	if len(allowlist) == 0 {
		return kindAlbums, nil
	}

	byName := make(map[string]icloud.Album, len(kindAlbums))
	for _, a := range kindAlbums {
		byName[a.Name] = a
	}

	kept := make([]icloud.Album, 0, len(allowlist))

	for _, name := range allowlist {
		a, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrConfiguredAlbumMissing, name)
		}

		kept = append(kept, a)
	}

	return kept, nil
}
