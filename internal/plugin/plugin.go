// Package plugin loads external rule packs and isolates their failures
// from the analysis batch. A plugin is a Go plugin (.so) exporting a
// Manifest; its rule IDs must carry the "plugin:" prefix.
package plugin

import (
	"fmt"
	goplugin "plugin"
	"strings"

	"github.com/flvmnt/pgfence/internal/parser"
	"github.com/flvmnt/pgfence/internal/policy"
	"github.com/flvmnt/pgfence/internal/rules"
)

// IDPrefix namespaces plugin rule IDs away from the built-in catalogue.
const IDPrefix = "plugin:"

// PolicyCheck is a migration-scope check contributed by a plugin.
type PolicyCheck func(stmts []parser.ParsedStatement) []policy.Violation

// Manifest is what a plugin exports: a name plus optional rules and
// policies.
type Manifest struct {
	Name     string
	Rules    []rules.Rule
	Policies []PolicyCheck
}

// ErrBadPluginID is returned when a plugin rule ID lacks the prefix.
var ErrBadPluginID = fmt.Errorf("plugin rule ID must begin with %q", IDPrefix)

// Load opens each plugin path and collects its manifest. The exported
// symbol may be a *Manifest or a func() *Manifest.
func Load(paths []string) ([]*Manifest, error) {
	manifests := make([]*Manifest, 0, len(paths))
	for _, path := range paths {
		p, err := goplugin.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening plugin %q: %w", path, err)
		}

		sym, err := p.Lookup("Manifest")
		if err != nil {
			return nil, fmt.Errorf("plugin %q exports no Manifest: %w", path, err)
		}

		var m *Manifest
		switch v := sym.(type) {
		case *Manifest:
			m = v
		case **Manifest:
			m = *v
		case func() *Manifest:
			m = v()
		default:
			return nil, fmt.Errorf("plugin %q: Manifest has unexpected type %T", path, sym)
		}
		if m == nil {
			return nil, fmt.Errorf("plugin %q: Manifest is nil", path)
		}
		manifests = append(manifests, m)
	}

	if err := Validate(manifests); err != nil {
		return nil, err
	}
	return manifests, nil
}

// Validate enforces the ID namespace and rejects collisions at load time.
func Validate(manifests []*Manifest) error {
	seen := make(map[string]string)
	for _, m := range manifests {
		for _, r := range m.Rules {
			id := r.ID()
			if !strings.HasPrefix(id, IDPrefix) {
				return fmt.Errorf("%w: plugin %q rule %q", ErrBadPluginID, m.Name, id)
			}
			if owner, dup := seen[id]; dup {
				return fmt.Errorf("plugin rule ID %q declared by both %q and %q", id, owner, m.Name)
			}
			seen[id] = m.Name
		}
	}
	return nil
}

// SafeCheck runs one plugin rule inside a failure boundary: a panic
// discards that statement's findings and the analysis continues.
func SafeCheck(rule rules.Rule, stmt parser.ParsedStatement, ctx *rules.Context) (results []rules.CheckResult) {
	defer func() {
		if recover() != nil {
			results = nil
		}
	}()
	return rule.Check(stmt, ctx)
}

// SafePolicy runs one plugin policy check inside the same boundary.
func SafePolicy(check PolicyCheck, stmts []parser.ParsedStatement) (violations []policy.Violation) {
	defer func() {
		if recover() != nil {
			violations = nil
		}
	}()
	return check(stmts)
}
