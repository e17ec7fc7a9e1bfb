package pipeline

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/harrowgate/epv/internal/domain"
)

// Deps collects the side-effecting collaborators a leaf action may need.
// It is shared read-only across every goroutine a stage fans out into.
type Deps struct {
	Content    ContentStore
	Redirector *Redirector
	Macros     domain.MacroRepository
}

// ContentStore abstracts the on-disk HTML bodies an EmailToHtml action
// reads; the real implementation lives in internal/repository.
type ContentStore interface {
	ReadHTML(ctx context.Context, relPath string) ([]byte, error)
}

// execute runs a single action against a single element, returning the
// (possibly empty) set of elements it produced. The combinators (Or, Pair,
// Filter) run their nested action lists through Run on a one-element seed. idx is the element's
// position in the current stage's input vector, the only observable stage
// position, and is consulted solely by ArraySelectNth. A type mismatch
// between the action and the element's kind is not an error: it silently
// yields zero elements, per the uniform drop policy every action follows.
func execute(ctx context.Context, deps *Deps, action *domain.Action, idx int, el domain.Element) ([]domain.Element, error) {
	switch action.Name {
	case domain.ActionMacro:
		// Macro expansion is single-pass; encountering one here means a
		// macro body referenced another macro, which is a script error.
		return nil, domain.InvalidInput(action.MacroName)

	case domain.ActionOr:
		result, err := Run(ctx, deps, action.Left, []domain.Element{el})
		if err != nil {
			return nil, err
		}
		if len(result) > 0 {
			return result, nil
		}
		return Run(ctx, deps, action.Right, []domain.Element{el})

	case domain.ActionPair:
		left, err := Run(ctx, deps, action.Left, []domain.Element{el})
		if err != nil {
			return nil, err
		}
		right, err := Run(ctx, deps, action.Right, []domain.Element{el})
		if err != nil {
			return nil, err
		}
		return []domain.Element{domain.NewPairElement(left, right)}, nil

	case domain.ActionFilter:
		result, err := Run(ctx, deps, action.Left, []domain.Element{el})
		if err != nil {
			return nil, err
		}
		if len(result) > 0 {
			return []domain.Element{el}, nil
		}
		return nil, nil

	case domain.ActionArraySelectNth:
		if idx == action.Index {
			return []domain.Element{el}, nil
		}
		return nil, nil
	}

	switch action.Name {
	case domain.ActionEmailToHtml:
		return execEmailToHTML(ctx, deps, el)
	case domain.ActionEmailGetAttr:
		return execEmailGetAttr(action, el)
	case domain.ActionEmailFilterRegex:
		return execEmailFilterRegex(action, el)

	case domain.ActionHtmlInnerText:
		return execHTMLInnerText(el)
	case domain.ActionHtmlOuterHtml:
		return execHTMLOuterHTML(el)
	case domain.ActionHtmlInnerHtml:
		return execHTMLInnerHTML(el)
	case domain.ActionHtmlGetAttr:
		return execHTMLGetAttr(action, el)
	case domain.ActionHtmlSelectCss:
		return execHTMLSelectCSS(action, el)
	case domain.ActionHtmlFilterCss:
		return execHTMLFilterCSS(action, el)

	case domain.ActionTextMatchRegex:
		return execTextMatchRegex(action, el)
	case domain.ActionTextFilterRegex:
		return execTextFilterRegex(action, el)
	case domain.ActionTextToHtml:
		return execTextToHTML(el)
	case domain.ActionTextToUrl:
		return execTextToURL(el)

	case domain.ActionUrlToText:
		return execURLToText(el)
	case domain.ActionUrlFollowRedirect:
		return execURLFollowRedirect(ctx, deps, el)
	case domain.ActionUrlGetQuery:
		return execURLGetQuery(action, el)
	case domain.ActionUrlGetSegment:
		return execURLGetSegment(action, el)

	case domain.ActionPairGetLeft:
		return execPairGetLeft(el)
	case domain.ActionPairGetRight:
		return execPairGetRight(el)
	case domain.ActionPairZipTogether:
		return execPairZipTogether(el)
	case domain.ActionPairDistributeLeft:
		return execPairDistributeLeft(el)
	case domain.ActionPairRightLeft:
		return execPairRightLeft(el)

	default:
		return nil, domain.InvalidInput(string(action.Name))
	}
}

func execEmailToHTML(ctx context.Context, deps *Deps, el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementEmail || el.Email == nil {
		return nil, nil
	}
	body, err := deps.Content.ReadHTML(ctx, el.Email.HTMLPath)
	if err != nil {
		return nil, domain.InternalErr()
	}
	return []domain.Element{domain.NewHTMLElement(string(body))}, nil
}

func execEmailGetAttr(action *domain.Action, el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementEmail || el.Email == nil {
		return nil, nil
	}
	return []domain.Element{domain.NewTextElement(el.Email.GetAttribute(action.EmailAttr))}, nil
}

func execEmailFilterRegex(action *domain.Action, el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementEmail || el.Email == nil {
		return nil, nil
	}
	re, err := regexp.Compile(action.Regex)
	if err != nil {
		return nil, domain.InvalidInput(action.Regex)
	}
	if re.MatchString(el.Email.GetAttribute(action.EmailAttr)) {
		return []domain.Element{el}, nil
	}
	return nil, nil
}

// fragmentRoot returns the first element node in document order that isn't
// html/head/body, matching the "real" content root of a parsed fragment.
func fragmentRoot(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data != "html" && n.Data != "head" && n.Data != "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if r := fragmentRoot(c); r != nil {
			return r
		}
	}
	return nil
}

func parseHTMLRoot(htmlStr string) *html.Node {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil || len(doc.Nodes) == 0 {
		return nil
	}
	return fragmentRoot(doc.Nodes[0])
}

func joinText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

func execHTMLInnerText(el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementHTML {
		return nil, nil
	}
	root := parseHTMLRoot(el.HTML)
	if root == nil {
		return nil, nil
	}
	return []domain.Element{domain.NewTextElement(joinText(root))}, nil
}

func execHTMLOuterHTML(el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementHTML {
		return nil, nil
	}
	// Literal pass-through of the input string, not a re-serialization
	// through the HTML parser (the observed behavior this mirrors).
	return []domain.Element{domain.NewTextElement(el.HTML)}, nil
}

func execHTMLInnerHTML(el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementHTML {
		return nil, nil
	}
	root := parseHTMLRoot(el.HTML)
	if root == nil {
		return nil, nil
	}
	sel := goquery.NewDocumentFromNode(root)
	inner, err := sel.Html()
	if err != nil {
		return nil, nil
	}
	return []domain.Element{domain.NewTextElement(inner)}, nil
}

func execHTMLGetAttr(action *domain.Action, el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementHTML {
		return nil, nil
	}
	root := parseHTMLRoot(el.HTML)
	if root == nil {
		return nil, nil
	}
	for _, attr := range root.Attr {
		if attr.Key == action.Attr {
			return []domain.Element{domain.NewTextElement(attr.Val)}, nil
		}
	}
	return nil, nil
}

func execHTMLSelectCSS(action *domain.Action, el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementHTML {
		return nil, nil
	}
	sel, err := cascadia.Compile(action.Selector)
	if err != nil {
		return nil, domain.InvalidInput(action.Selector)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(el.HTML))
	if err != nil || len(doc.Nodes) == 0 {
		return nil, nil
	}
	nodes := sel.MatchAll(doc.Nodes[0])
	out := make([]domain.Element, 0, len(nodes))
	for _, n := range nodes {
		outer, err := goquery.OuterHtml(goquery.NewDocumentFromNode(n).Selection)
		if err != nil {
			continue
		}
		out = append(out, domain.NewHTMLElement(outer))
	}
	return out, nil
}

func execHTMLFilterCSS(action *domain.Action, el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementHTML {
		return nil, nil
	}
	sel, err := cascadia.Compile(action.Selector)
	if err != nil {
		return nil, domain.InvalidInput(action.Selector)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(el.HTML))
	if err != nil || len(doc.Nodes) == 0 {
		return nil, nil
	}
	if len(sel.MatchAll(doc.Nodes[0])) > 0 {
		return []domain.Element{el}, nil
	}
	return nil, nil
}

func execTextMatchRegex(action *domain.Action, el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementText {
		return nil, nil
	}
	re, err := regexp.Compile(action.Regex)
	if err != nil {
		return nil, domain.InvalidInput(action.Regex)
	}
	matches := re.FindAllStringSubmatchIndex(el.Text, -1)
	out := make([]domain.Element, 0, len(matches))
	for _, m := range matches {
		expanded := re.ExpandString(nil, action.Template, el.Text, m)
		out = append(out, domain.NewTextElement(string(expanded)))
	}
	return out, nil
}

func execTextFilterRegex(action *domain.Action, el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementText {
		return nil, nil
	}
	re, err := regexp.Compile(action.Regex)
	if err != nil {
		return nil, domain.InvalidInput(action.Regex)
	}
	if re.MatchString(el.Text) {
		return []domain.Element{el}, nil
	}
	return nil, nil
}

func execTextToHTML(el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementText {
		return nil, nil
	}
	return []domain.Element{domain.NewHTMLElement(el.Text)}, nil
}

func execTextToURL(el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementText {
		return nil, nil
	}
	u, err := url.Parse(strings.TrimSpace(el.Text))
	if err != nil {
		return nil, domain.InvalidInput(el.Text)
	}
	if u.Scheme == "" {
		return nil, domain.InvalidInput(el.Text)
	}
	return []domain.Element{domain.NewURLElement(u)}, nil
}

func execURLToText(el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementURL || el.URL == nil {
		return nil, nil
	}
	return []domain.Element{domain.NewTextElement(el.URL.String())}, nil
}

func execURLFollowRedirect(ctx context.Context, deps *Deps, el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementURL || el.URL == nil {
		return nil, nil
	}
	final, ok, err := deps.Redirector.Follow(ctx, el.URL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return []domain.Element{domain.NewURLElement(final)}, nil
}

func execURLGetQuery(action *domain.Action, el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementURL || el.URL == nil {
		return nil, nil
	}
	values, ok := el.URL.Query()[action.Query]
	if !ok || len(values) == 0 {
		return nil, nil
	}
	return []domain.Element{domain.NewTextElement(values[0])}, nil
}

func execURLGetSegment(action *domain.Action, el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementURL || el.URL == nil {
		return nil, nil
	}
	if el.URL.Opaque != "" {
		return nil, nil
	}
	trimmed := strings.TrimPrefix(el.URL.EscapedPath(), "/")
	segments := strings.Split(trimmed, "/")
	idx := action.Index
	if idx < 0 {
		idx += len(segments)
	}
	if idx < 0 || idx >= len(segments) {
		return nil, nil
	}
	decoded, err := url.PathUnescape(segments[idx])
	if err != nil {
		decoded = segments[idx]
	}
	return []domain.Element{domain.NewTextElement(decoded)}, nil
}

// execPairGetLeft emits each element held on the left side of the pair.
func execPairGetLeft(el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementPair {
		return nil, nil
	}
	out := make([]domain.Element, len(el.Left))
	copy(out, el.Left)
	return out, nil
}

// execPairGetRight emits each element held on the right side of the pair.
func execPairGetRight(el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementPair {
		return nil, nil
	}
	out := make([]domain.Element, len(el.Right))
	copy(out, el.Right)
	return out, nil
}

// execPairZipTogether zips the two sides positionally, stopping at the
// shorter side; each resulting pair holds a singleton on either side.
func execPairZipTogether(el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementPair {
		return nil, nil
	}
	n := len(el.Left)
	if len(el.Right) < n {
		n = len(el.Right)
	}
	out := make([]domain.Element, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.NewPairElement(el.Left[i:i+1], el.Right[i:i+1]))
	}
	return out, nil
}

// execPairDistributeLeft re-pairs the whole left side against each
// individual element on the right: Pair(L,R) -> for each r in R, Pair(L,[r]).
func execPairDistributeLeft(el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementPair {
		return nil, nil
	}
	out := make([]domain.Element, 0, len(el.Right))
	for _, r := range el.Right {
		out = append(out, domain.NewPairElement(el.Left, []domain.Element{r}))
	}
	return out, nil
}

// execPairRightLeft swaps a pair's two sides.
func execPairRightLeft(el domain.Element) ([]domain.Element, error) {
	if el.Kind != domain.ElementPair {
		return nil, nil
	}
	return []domain.Element{domain.NewPairElement(el.Right, el.Left)}, nil
}
