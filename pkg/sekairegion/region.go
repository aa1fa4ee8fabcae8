// Package sekairegion defines the fixed set of game-client regions and the
// two authentication dialects they are grouped into.
package sekairegion

import "github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"

// Region is one of the five supported game-client regions.
type Region string

const (
	JP Region = "jp"
	EN Region = "en"
	TW Region = "tw"
	KR Region = "kr"
	CN Region = "cn"
)

// All lists every known region in a stable order.
var All = []Region{JP, EN, TW, KR, CN}

// Parse validates a region string read from config or a URL path segment.
func Parse(s string) (Region, error) {
	switch Region(s) {
	case JP, EN, TW, KR, CN:
		return Region(s), nil
	default:
		return "", apperror.New(apperror.KindInvalidServerRegion, "unknown region %q", s)
	}
}

func (r Region) String() string { return string(r) }

// Dialect is the account/authentication style used by a region.
type Dialect string

const (
	DialectCP      Dialect = "cp"
	DialectNuverse Dialect = "nuverse"
)

// Dialect reports which authentication dialect a region uses.
func (r Region) Dialect() Dialect {
	switch r {
	case JP, EN:
		return DialectCP
	default:
		return DialectNuverse
	}
}

func (r Region) IsCP() bool      { return r.Dialect() == DialectCP }
func (r Region) IsNuverse() bool { return r.Dialect() == DialectNuverse }
