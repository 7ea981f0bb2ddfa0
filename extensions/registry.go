// Package extensions holds the builtin rule modules and the registry that
// matches them against the version ranges a map asks for.
package extensions

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/zucenko/ustcchess/game"
)

var (
	ErrMissingExtension = errors.New("missing extension")
	ErrInvalidVersion   = errors.New("invalid extension version")
)

// Factory builds a fresh extension instance. Every match gets its own.
type Factory func() game.Extension

type entry struct {
	info    game.Info
	version *semver.Version
	factory Factory
}

// Registry keeps factories in registration order, which is also the order
// resolved extensions are applied in.
type Registry struct {
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(factory Factory) error {
	info := factory().Info()
	v, err := semver.NewVersion(info.Version)
	if err != nil {
		return fmt.Errorf("%w: %s@%s: %v", ErrInvalidVersion, info.Key, info.Version, err)
	}
	r.entries = append(r.entries, entry{info: info, version: v, factory: factory})
	return nil
}

func (r *Registry) MustRegister(factory Factory) {
	if err := r.Register(factory); err != nil {
		panic(err)
	}
}

func (r *Registry) Infos() []game.Info {
	infos := make([]game.Info, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, e.info)
	}
	return infos
}

// Resolve instantiates, for every required key, the highest registered
// version inside its range.
func (r *Registry) Resolve(required map[string]string) ([]game.Extension, error) {
	best := make(map[string]*entry)
	order := make([]string, 0)
	var missing []string
	for i := range r.entries {
		e := &r.entries[i]
		rng, ok := required[e.info.Key]
		if !ok {
			continue
		}
		c, err := semver.NewConstraint(rng)
		if err != nil {
			return nil, fmt.Errorf("%w: %s range %q: %v", ErrInvalidVersion, e.info.Key, rng, err)
		}
		if !c.Check(e.version) {
			continue
		}
		cur, seen := best[e.info.Key]
		if !seen {
			order = append(order, e.info.Key)
		}
		if !seen || e.version.GreaterThan(cur.version) {
			best[e.info.Key] = e
		}
	}
	for key, rng := range required {
		if _, ok := best[key]; !ok {
			missing = append(missing, key+"@"+rng)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingExtension, strings.Join(missing, ", "))
	}
	out := make([]game.Extension, 0, len(order))
	for _, key := range order {
		out = append(out, best[key].factory())
	}
	return out, nil
}

// Builtin returns a registry with every rule module of this package.
func Builtin() *Registry {
	r := NewRegistry()
	r.MustRegister(NewStdChess)
	r.MustRegister(NewChineseChess)
	r.MustRegister(NewFLXG)
	r.MustRegister(NewPromote)
	r.MustRegister(NewAllowedArea)
	r.MustRegister(NewAtomic)
	return r
}
