package browser

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionSelected(t *testing.T) {
	loc := schemas.ID("dnsMode")

	t.Run("Matched", func(t *testing.T) {
		assert.NoError(t, optionSelected([]byte("true"), "Manual", loc))
	})

	t.Run("NoMatch", func(t *testing.T) {
		err := optionSelected([]byte("false"), "Manual", loc)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoSuchOption)
		assert.Contains(t, err.Error(), `"Manual"`)
		assert.Contains(t, err.Error(), "dnsMode")
	})

	t.Run("UndecodableResult", func(t *testing.T) {
		err := optionSelected([]byte(`"yes"`), "Manual", loc)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoSuchOption)
	})

	t.Run("EmptyResult", func(t *testing.T) {
		assert.Error(t, optionSelected(nil, "Manual", loc))
	})
}

func TestSelectOptionFunc(t *testing.T) {
	fn := selectOptionFunc(`say "hi"\now`)
	assert.Contains(t, fn, `const want = "say \"hi\"\\now";`)
	assert.Contains(t, fn, "dispatchEvent(new Event('change'")
}

func TestFrameXPathFunc(t *testing.T) {
	fn := frameXPathFunc(`//input[@name="dns1"]`)
	assert.Contains(t, fn, "this.contentDocument")
	assert.Contains(t, fn, `doc.evaluate("//input[@name=\"dns1\"]", doc,`)
}

func TestQuery(t *testing.T) {
	t.Run("TopLevel", func(t *testing.T) {
		d := &chromeDriver{}

		sel, opts := d.query(schemas.ID(`a"b`))
		assert.Equal(t, `[id="a\"b"]`, sel)
		assert.Len(t, opts, 1)

		sel, opts = d.query(schemas.XPath("//form//input[1]"))
		assert.Equal(t, "//form//input[1]", sel)
		assert.Len(t, opts, 1)
	})

	t.Run("InsideFrame", func(t *testing.T) {
		d := &chromeDriver{frames: []*cdp.Node{{NodeID: 7}}}

		sel, opts := d.query(schemas.ID("dns1"))
		assert.Equal(t, `[id="dns1"]`, sel)
		assert.Len(t, opts, 2, "identifier lookups are rooted at the frame node")

		sel, opts = d.query(schemas.XPath("//input"))
		assert.Equal(t, "//input", sel)
		assert.Len(t, opts, 1, "path expressions run in the frame document only")
	})
}
