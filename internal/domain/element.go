package domain

import "net/url"

// ElementKind tags the variant held by an Element. Element is a closed,
// hand-rolled sum type rather than an interface hierarchy: the action
// executor switches on (action, kind) pairs constantly, and a concrete tag
// is cheaper and clearer there than a type-switch over implementations.
type ElementKind string

const (
	ElementEmail ElementKind = "Email"
	ElementHTML  ElementKind = "Html"
	ElementText  ElementKind = "Text"
	ElementURL   ElementKind = "Url"
	ElementPair  ElementKind = "Pair"
)

// Element is one value flowing through a pipeline stage. Only the fields
// matching Kind are meaningful; the rest are zero. Email is a pointer since
// emails are loaded once per request and shared (read-only) across every
// task that touches them.
type Element struct {
	Kind ElementKind

	Email *EmailRecord
	HTML  string
	Text  string
	URL   *url.URL

	// Pair holds every element produced by each side at the moment the
	// pair was built. Nested pairs are legal; the shaper later flattens
	// them, keeping only the first element of each side.
	Left  []Element
	Right []Element
}

func NewEmailElement(e *EmailRecord) Element { return Element{Kind: ElementEmail, Email: e} }
func NewHTMLElement(s string) Element         { return Element{Kind: ElementHTML, HTML: s} }
func NewTextElement(s string) Element         { return Element{Kind: ElementText, Text: s} }
func NewURLElement(u *url.URL) Element        { return Element{Kind: ElementURL, URL: u} }

func NewPairElement(left, right []Element) Element {
	return Element{Kind: ElementPair, Left: left, Right: right}
}

// SerializableElement is the JSON projection of an Element returned from
// execute-script. A Pair's value is a two-element [left, right] array whose
// entries are arrays of the same shape, serialized recursively; the shaper
// is what ultimately flattens these into rows.
type SerializableElement struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

func (e Element) Serialize() SerializableElement {
	switch e.Kind {
	case ElementEmail:
		id := ""
		if e.Email != nil {
			id = e.Email.ID
		}
		return SerializableElement{Type: string(ElementEmail), Value: id}
	case ElementHTML:
		return SerializableElement{Type: string(ElementHTML), Value: e.HTML}
	case ElementText:
		return SerializableElement{Type: string(ElementText), Value: e.Text}
	case ElementURL:
		s := ""
		if e.URL != nil {
			s = e.URL.String()
		}
		return SerializableElement{Type: string(ElementURL), Value: s}
	case ElementPair:
		left := make([]SerializableElement, len(e.Left))
		for i, el := range e.Left {
			left[i] = el.Serialize()
		}
		right := make([]SerializableElement, len(e.Right))
		for i, el := range e.Right {
			right[i] = el.Serialize()
		}
		return SerializableElement{Type: string(ElementPair), Value: []interface{}{left, right}}
	default:
		return SerializableElement{Type: "", Value: nil}
	}
}
