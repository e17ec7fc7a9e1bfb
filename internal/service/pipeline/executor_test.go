package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrowgate/epv/internal/domain"
)

func pairOf(leftTexts, rightTexts []string) domain.Element {
	left := make([]domain.Element, len(leftTexts))
	for i, s := range leftTexts {
		left[i] = domain.NewTextElement(s)
	}
	right := make([]domain.Element, len(rightTexts))
	for i, s := range rightTexts {
		right[i] = domain.NewTextElement(s)
	}
	return domain.NewPairElement(left, right)
}

func TestExecute_PairGetLeftAndRight(t *testing.T) {
	deps := testDeps(nil)
	p := pairOf([]string{"l1", "l2"}, []string{"r1"})

	left, err := execute(context.Background(), deps, &domain.Action{Name: domain.ActionPairGetLeft}, 0, p)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "l1", left[0].Text)
	assert.Equal(t, "l2", left[1].Text)

	right, err := execute(context.Background(), deps, &domain.Action{Name: domain.ActionPairGetRight}, 0, p)
	require.NoError(t, err)
	require.Len(t, right, 1)
	assert.Equal(t, "r1", right[0].Text)
}

func TestExecute_PairZipTogetherStopsAtShorterSide(t *testing.T) {
	deps := testDeps(nil)
	p := pairOf([]string{"l1", "l2", "l3"}, []string{"r1", "r2"})

	out, err := execute(context.Background(), deps, &domain.Action{Name: domain.ActionPairZipTogether}, 0, p)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "l1", out[0].Left[0].Text)
	assert.Equal(t, "r1", out[0].Right[0].Text)
	assert.Equal(t, "l2", out[1].Left[0].Text)
	assert.Equal(t, "r2", out[1].Right[0].Text)
}

func TestExecute_PairDistributeLeft(t *testing.T) {
	deps := testDeps(nil)
	p := pairOf([]string{"l1", "l2"}, []string{"r1", "r2", "r3"})

	out, err := execute(context.Background(), deps, &domain.Action{Name: domain.ActionPairDistributeLeft}, 0, p)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, r := range out {
		require.Len(t, r.Left, 2)
		require.Len(t, r.Right, 1)
		assert.Equal(t, p.Right[i].Text, r.Right[0].Text)
	}
}

func TestExecute_UrlGetSegmentNegativeIndex(t *testing.T) {
	deps := testDeps(nil)
	out, err := Run(context.Background(), deps,
		[]domain.Action{{Name: domain.ActionTextToUrl}, {Name: domain.ActionUrlGetSegment, Index: -1}},
		[]domain.Element{domain.NewTextElement("https://x.test/a/b/c")})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].Text)
}

func TestExecute_UrlFollowRedirect(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer final.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer redirector.Close()

	deps := testDeps(nil)
	out, err := Run(context.Background(), deps,
		[]domain.Action{{Name: domain.ActionTextToUrl}, {Name: domain.ActionUrlFollowRedirect}},
		[]domain.Element{domain.NewTextElement(redirector.URL)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.ElementURL, out[0].Kind)
	assert.Equal(t, final.URL, out[0].URL.String())
}

func TestExecute_UrlFollowRedirectTransportFailureIsSilent(t *testing.T) {
	deps := testDeps(nil)
	out, err := Run(context.Background(), deps,
		[]domain.Action{{Name: domain.ActionTextToUrl}, {Name: domain.ActionUrlFollowRedirect}},
		[]domain.Element{domain.NewTextElement("http://127.0.0.1:1")})
	require.NoError(t, err)
	assert.Empty(t, out)
}
