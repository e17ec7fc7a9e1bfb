package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harrowgate/epv/internal/domain"
)

func TestFlatten_NonPairIsSingleCellRow(t *testing.T) {
	rows := Flatten([]domain.Element{domain.NewTextElement("x")})
	assert.Equal(t, [][]domain.SerializableElement{
		{{Type: "Text", Value: "x"}},
	}, rows)
}

func TestFlatten_PairKeepsOnlyFirstOfEachSide(t *testing.T) {
	p := domain.NewPairElement(
		[]domain.Element{domain.NewTextElement("l1"), domain.NewTextElement("l2")},
		[]domain.Element{domain.NewTextElement("r1")},
	)
	rows := Flatten([]domain.Element{p})
	assert.Equal(t, [][]domain.SerializableElement{
		{{Type: "Text", Value: "l1"}, {Type: "Text", Value: "r1"}},
	}, rows)
}

func TestFlatten_NestedPairFlattensRecursively(t *testing.T) {
	inner := domain.NewPairElement(
		[]domain.Element{domain.NewTextElement("a")},
		[]domain.Element{domain.NewTextElement("b")},
	)
	outer := domain.NewPairElement(
		[]domain.Element{inner},
		[]domain.Element{domain.NewTextElement("c")},
	)
	rows := Flatten([]domain.Element{outer})
	assert.Equal(t, [][]domain.SerializableElement{
		{{Type: "Text", Value: "a"}, {Type: "Text", Value: "b"}, {Type: "Text", Value: "c"}},
	}, rows)
}

func TestFlatten_EmptySideContributesNothing(t *testing.T) {
	p := domain.NewPairElement(nil, []domain.Element{domain.NewTextElement("r")})
	rows := Flatten([]domain.Element{p})
	assert.Equal(t, [][]domain.SerializableElement{
		{{Type: "Text", Value: "r"}},
	}, rows)
}
