package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flvmnt/pgfence/internal/parser"
	"github.com/flvmnt/pgfence/internal/plugin"
	"github.com/flvmnt/pgfence/internal/policy"
	"github.com/flvmnt/pgfence/internal/risk"
	"github.com/flvmnt/pgfence/internal/rules"
)

type namedRule struct {
	id     string
	panics bool
}

func (r *namedRule) ID() string { return r.id }

func (r *namedRule) Check(stmt parser.ParsedStatement, ctx *rules.Context) []rules.CheckResult {
	if r.panics {
		panic("boom")
	}
	return []rules.CheckResult{{RuleID: r.id, BaseRisk: risk.Low, Statement: stmt.SQL}}
}

func TestValidateAcceptsPrefixedIDs(t *testing.T) {
	t.Parallel()

	err := plugin.Validate([]*plugin.Manifest{
		{Name: "a", Rules: []rules.Rule{&namedRule{id: "plugin:one"}}},
		{Name: "b", Rules: []rules.Rule{&namedRule{id: "plugin:two"}}},
	})
	assert.NoError(t, err)
}

func TestValidateRejectsUnprefixedID(t *testing.T) {
	t.Parallel()

	err := plugin.Validate([]*plugin.Manifest{
		{Name: "a", Rules: []rules.Rule{&namedRule{id: "bare-id"}}},
	})
	assert.ErrorIs(t, err, plugin.ErrBadPluginID)
}

func TestValidateRejectsCollisions(t *testing.T) {
	t.Parallel()

	err := plugin.Validate([]*plugin.Manifest{
		{Name: "a", Rules: []rules.Rule{&namedRule{id: "plugin:same"}}},
		{Name: "b", Rules: []rules.Rule{&namedRule{id: "plugin:same"}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin:same")
}

func TestSafeCheckSwallowsPanic(t *testing.T) {
	t.Parallel()

	stmt := parser.ParsedStatement{SQL: "SELECT 1"}
	ctx := &rules.Context{MinPGVersion: 11}

	got := plugin.SafeCheck(&namedRule{id: "plugin:boom", panics: true}, stmt, ctx)
	assert.Nil(t, got)

	got = plugin.SafeCheck(&namedRule{id: "plugin:fine"}, stmt, ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "plugin:fine", got[0].RuleID)
}

func TestSafePolicySwallowsPanic(t *testing.T) {
	t.Parallel()

	panicky := func([]parser.ParsedStatement) []policy.Violation { panic("boom") }
	assert.Nil(t, plugin.SafePolicy(panicky, nil))

	healthy := func([]parser.ParsedStatement) []policy.Violation {
		return []policy.Violation{{RuleID: "plugin:p", Severity: policy.SeverityWarning}}
	}
	got := plugin.SafePolicy(healthy, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "plugin:p", got[0].RuleID)
}
