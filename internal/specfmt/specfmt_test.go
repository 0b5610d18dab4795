package specfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func format(t *testing.T, text string, cfg Config) string {
	t.Helper()
	out, err := Format(text, cfg)
	require.NoError(t, err)
	return out
}

func TestFormatNormalizesSpacing(t *testing.T) {
	got := format(t, "requires:   x>0 ,ensures:output==x+1", DefaultConfig())
	assert.Equal(t, "requires: x>0, ensures: output==x+1", got)
}

func TestFormatPreservesIntentionalSpaces(t *testing.T) {
	got := format(t, "requires: x > 0", DefaultConfig())
	assert.Equal(t, "requires: x > 0", got)
}

func TestFormatEmptySpec(t *testing.T) {
	assert.Equal(t, "", format(t, "", DefaultConfig()))
	assert.Equal(t, "", format(t, "   ", DefaultConfig()))
}

func TestFormatGuardAttribute(t *testing.T) {
	got := format(t, "when( debugChecks )requires: x > 0", DefaultConfig())
	assert.Equal(t, "when(debugChecks) requires: x > 0", got)
}

func TestFormatBindsPattern(t *testing.T) {
	got := format(t, "binds: ( v,ok )", DefaultConfig())
	assert.Equal(t, "binds: (v, ok)", got)
}

func TestFormatList(t *testing.T) {
	got := format(t, "requires: [ a ,b , ]", DefaultConfig())
	assert.Equal(t, "requires: [a, b]", got)
}

func TestFormatCaptures(t *testing.T) {
	got := format(t, "captures: [ x , s.len() as old_len , m[k] as ( v , ok ) ]", DefaultConfig())
	assert.Equal(t, "captures: [x, s.len() as old_len, m[k] as (v, ok)]", got)
}

func TestFormatBreaksLongSpecs(t *testing.T) {
	cfg := Config{MaxWidth: 40, Indent: "\t", TrailingComma: true}
	got := format(t, "requires: someLongCondition(x), ensures: anotherLongCondition(output)", cfg)
	assert.Equal(t, "\trequires: someLongCondition(x),\n\tensures: anotherLongCondition(output),", got)
}

func TestFormatMultilineNoTrailingComma(t *testing.T) {
	cfg := Config{MaxWidth: 10, Indent: "  ", TrailingComma: false}
	got := format(t, "requires: a, ensures: b", cfg)
	assert.Equal(t, "  requires: a,\n  ensures: b", got)
}

func TestFormatIdempotent(t *testing.T) {
	specs := []string{
		"requires:   x>0 ,ensures: output == x+1",
		"when(dbg) maintains: s.valid(), captures: [x, m[k] as (v, ok)], binds: (a, b), ensures: a > b",
		"requires: someLongCondition(x), ensures: anotherLongCondition(output)",
	}
	for _, cfg := range []Config{
		DefaultConfig(),
		{MaxWidth: 30, Indent: "\t", TrailingComma: true},
		{MaxWidth: 30, Indent: "    ", TrailingComma: false, Reorder: true},
	} {
		for _, s := range specs {
			once := format(t, s, cfg)
			twice := format(t, once, cfg)
			assert.Equal(t, once, twice, "config %+v spec %q", cfg, s)
		}
	}
}

func TestFormatReorder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reorder = true
	got := format(t, "ensures: output > 0, requires: x > 0, captures: x", cfg)
	assert.Equal(t, "requires: x > 0, captures: x, ensures: output > 0", got)
}

func TestFormatReorderIsStable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reorder = true
	got := format(t, "ensures: second, requires: a, ensures: third, requires: b", cfg)
	assert.Equal(t, "requires: a, requires: b, ensures: second, ensures: third", got)
}

func TestFormatWithoutReorderKeepsOrder(t *testing.T) {
	got := format(t, "ensures: output > 0, requires: x > 0", DefaultConfig())
	assert.Equal(t, "ensures: output > 0, requires: x > 0", got)
}

func TestFormatUnknownKeywordStillFormats(t *testing.T) {
	got := format(t, "wants:  x < 10", DefaultConfig())
	assert.Equal(t, "wants: x < 10", got)
}

func TestFormatStructuralErrorPropagates(t *testing.T) {
	_, err := Format("requires: (x > 0", DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unclosed delimiter")
}
