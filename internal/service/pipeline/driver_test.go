package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrowgate/epv/internal/domain"
)

func serializeAll(els []domain.Element) []domain.SerializableElement {
	out := make([]domain.SerializableElement, len(els))
	for i, e := range els {
		out[i] = e.Serialize()
	}
	return out
}

func TestRun_SubjectExtract(t *testing.T) {
	email := &domain.EmailRecord{ID: "1", Subject: "Order #4271 confirmed"}
	deps := testDeps(nil)
	actions := []domain.Action{
		{Name: domain.ActionEmailGetAttr, EmailAttr: domain.AttrSubject},
		{Name: domain.ActionTextMatchRegex, Regex: `#(\d+)`, Template: "$1"},
	}

	out, err := Run(context.Background(), deps, actions, []domain.Element{domain.NewEmailElement(email)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.ElementText, out[0].Kind)
	assert.Equal(t, "4271", out[0].Text)
}

func TestRun_CssSelectAndAttribute(t *testing.T) {
	email := &domain.EmailRecord{ID: "1", HTMLPath: "1.html"}
	files := map[string][]byte{
		"1.html": []byte(`<a href="https://x.test/a"></a><a href="https://x.test/b"></a>`),
	}
	deps := testDeps(files)
	actions := []domain.Action{
		{Name: domain.ActionEmailToHtml},
		{Name: domain.ActionHtmlSelectCss, Selector: "a"},
		{Name: domain.ActionHtmlGetAttr, Attr: "href"},
	}

	out, err := Run(context.Background(), deps, actions, []domain.Element{domain.NewEmailElement(email)})
	require.NoError(t, err)
	got := map[string]bool{}
	for _, e := range out {
		require.Equal(t, domain.ElementText, e.Kind)
		got[e.Text] = true
	}
	assert.Equal(t, map[string]bool{"https://x.test/a": true, "https://x.test/b": true}, got)
}

func TestRun_FilterThenProject(t *testing.T) {
	promo := &domain.EmailRecord{ID: "1", Subject: "promo", FromAddr: "promo@x.test"}
	invoice := &domain.EmailRecord{ID: "2", Subject: "invoice", FromAddr: "billing@x.test"}
	deps := testDeps(nil)
	actions := []domain.Action{
		{Name: domain.ActionEmailFilterRegex, EmailAttr: domain.AttrSubject, Regex: "^invoice$"},
		{Name: domain.ActionEmailGetAttr, EmailAttr: domain.AttrFromAddress},
	}

	out, err := Run(context.Background(), deps, actions, []domain.Element{
		domain.NewEmailElement(promo),
		domain.NewEmailElement(invoice),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "billing@x.test", out[0].Text)
}

func TestRun_PairAndShape(t *testing.T) {
	email := &domain.EmailRecord{ID: "1", Subject: "hello", FromAddr: "a@x.test"}
	deps := testDeps(nil)
	actions := []domain.Action{
		{
			Name: domain.ActionPair,
			Left: []domain.Action{
				{Name: domain.ActionEmailGetAttr, EmailAttr: domain.AttrSubject},
			},
			Right: []domain.Action{
				{Name: domain.ActionEmailGetAttr, EmailAttr: domain.AttrFromAddress},
			},
		},
	}

	out, err := Run(context.Background(), deps, actions, []domain.Element{domain.NewEmailElement(email)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, domain.ElementPair, out[0].Kind)

	rows := Flatten(out)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], 2)
	assert.Equal(t, domain.SerializableElement{Type: "Text", Value: "hello"}, rows[0][0])
	assert.Equal(t, domain.SerializableElement{Type: "Text", Value: "a@x.test"}, rows[0][1])
}

func TestRun_OrFallback(t *testing.T) {
	email := &domain.EmailRecord{ID: "1", HTMLPath: "1.html"}
	files := map[string][]byte{"1.html": []byte(`<p>hello</p>`)}
	deps := testDeps(files)
	actions := []domain.Action{
		{Name: domain.ActionEmailToHtml},
		{
			Name: domain.ActionOr,
			Left: []domain.Action{
				{Name: domain.ActionHtmlSelectCss, Selector: "a"},
			},
			Right: []domain.Action{
				{Name: domain.ActionHtmlInnerText},
			},
		},
	}

	out, err := Run(context.Background(), deps, actions, []domain.Element{domain.NewEmailElement(email)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "hello", out[0].Text)
}

func TestRun_UrlQueryExtraction(t *testing.T) {
	deps := testDeps(nil)
	actions := []domain.Action{
		{Name: domain.ActionTextToUrl},
		{Name: domain.ActionUrlGetQuery, Query: "id"},
	}

	out, err := Run(context.Background(), deps, actions, []domain.Element{
		domain.NewTextElement("https://x.test/p?id=7&id=9"),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "7", out[0].Text)
}

func TestRun_ErrorScenarios(t *testing.T) {
	deps := testDeps(nil)

	_, err := Run(context.Background(), deps,
		[]domain.Action{{Name: domain.ActionTextFilterRegex, Regex: "("}},
		[]domain.Element{domain.NewTextElement("x")})
	require.Error(t, err)
	assert.Equal(t, domain.InvalidInput("(").Kind, err.(*domain.Error).Kind)

	_, err = Run(context.Background(), deps,
		[]domain.Action{{Name: domain.ActionHtmlSelectCss, Selector: "a["}},
		[]domain.Element{domain.NewHTMLElement("<a></a>")})
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindInvalidInput, err.(*domain.Error).Kind)

	_, err = Run(context.Background(), deps,
		[]domain.Action{{Name: domain.ActionMacro, MacroName: "unknown"}},
		[]domain.Element{domain.NewTextElement("x")})
	require.Error(t, err)
	require.Equal(t, domain.ErrKindInvalidInput, err.(*domain.Error).Kind)
	assert.Equal(t, "unknown", err.(*domain.Error).Data)
}

func TestRun_TypeMismatchIsSilent(t *testing.T) {
	deps := testDeps(nil)
	out, err := Run(context.Background(), deps,
		[]domain.Action{{Name: domain.ActionHtmlInnerText}},
		[]domain.Element{domain.NewTextElement("not html")})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRun_EmptyShortCircuit(t *testing.T) {
	deps := testDeps(nil)
	out, err := Run(context.Background(), deps,
		[]domain.Action{
			{Name: domain.ActionHtmlInnerText},
			{Name: domain.ActionTextToHtml},
		},
		[]domain.Element{domain.NewTextElement("not html")})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRun_MacroExpansionEquivalence(t *testing.T) {
	email := &domain.EmailRecord{ID: "1", Subject: "hi"}
	macroBody := []domain.Action{{Name: domain.ActionEmailGetAttr, EmailAttr: domain.AttrSubject}}
	deps := testDeps(nil, domain.Macro{Name: "subj", Actions: macroBody})

	viaMacro, err := Run(context.Background(), deps,
		[]domain.Action{{Name: domain.ActionMacro, MacroName: "subj"}},
		[]domain.Element{domain.NewEmailElement(email)})
	require.NoError(t, err)

	inline, err := Run(context.Background(), deps, macroBody, []domain.Element{domain.NewEmailElement(email)})
	require.NoError(t, err)

	assert.Equal(t, serializeAll(inline), serializeAll(viaMacro))
}

func TestRun_TextToHtmlRoundTrip(t *testing.T) {
	deps := testDeps(nil)
	out, err := Run(context.Background(), deps,
		[]domain.Action{{Name: domain.ActionTextToHtml}, {Name: domain.ActionHtmlOuterHtml}},
		[]domain.Element{domain.NewTextElement("hello <b>world</b>")})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.ElementText, out[0].Kind)
	assert.Equal(t, "hello <b>world</b>", out[0].Text)
}

func TestRun_PairRightLeftInvolution(t *testing.T) {
	deps := testDeps(nil)
	seed := domain.NewPairElement(
		[]domain.Element{domain.NewTextElement("L")},
		[]domain.Element{domain.NewTextElement("R")},
	)
	out, err := Run(context.Background(), deps,
		[]domain.Action{{Name: domain.ActionPairRightLeft}, {Name: domain.ActionPairRightLeft}},
		[]domain.Element{seed})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, seed.Serialize(), out[0].Serialize())
}

func TestRun_ArraySelectNthPartition(t *testing.T) {
	deps := testDeps(nil)
	elements := []domain.Element{
		domain.NewTextElement("a"),
		domain.NewTextElement("b"),
		domain.NewTextElement("c"),
	}

	out, err := Run(context.Background(), deps,
		[]domain.Action{{Name: domain.ActionArraySelectNth, Index: 1}},
		elements)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Text)

	out, err = Run(context.Background(), deps,
		[]domain.Action{{Name: domain.ActionArraySelectNth, Index: 5}},
		elements)
	require.NoError(t, err)
	assert.Empty(t, out)
}
