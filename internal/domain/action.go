package domain

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ActionName is the wire tag of an Action, matching the {"name": ...,
// "arguments": ...} adjacently-tagged encoding the original script format
// uses.
type ActionName string

const (
	ActionEmailToHtml       ActionName = "EmailToHtml"
	ActionEmailFilterRegex  ActionName = "EmailFilterRegex"
	ActionEmailGetAttr      ActionName = "EmailGetAttr"
	ActionHtmlInnerText     ActionName = "HtmlInnerText"
	ActionHtmlOuterHtml     ActionName = "HtmlOuterHtml"
	ActionHtmlInnerHtml     ActionName = "HtmlInnerHtml"
	ActionHtmlGetAttr       ActionName = "HtmlGetAttr"
	ActionHtmlSelectCss     ActionName = "HtmlSelectCss"
	ActionHtmlFilterCss     ActionName = "HtmlFilterCss"
	ActionTextMatchRegex    ActionName = "TextMatchRegex"
	ActionTextFilterRegex   ActionName = "TextFilterRegex"
	ActionTextToHtml        ActionName = "TextToHtml"
	ActionTextToUrl         ActionName = "TextToUrl"
	ActionUrlToText         ActionName = "UrlToText"
	ActionUrlFollowRedirect ActionName = "UrlFollowRedirect"
	ActionUrlGetQuery       ActionName = "UrlGetQuery"
	ActionUrlGetSegment     ActionName = "UrlGetSegment"
	ActionArraySelectNth    ActionName = "ArraySelectNth"
	ActionPairGetLeft       ActionName = "PairGetLeft"
	ActionPairGetRight      ActionName = "PairGetRight"
	ActionPairZipTogether   ActionName = "PairZipTogether"
	ActionPairDistributeLeft ActionName = "PairDistributeLeft"
	ActionPairRightLeft     ActionName = "PairRightLeft"
	ActionMacro             ActionName = "Macro"
	ActionOr                ActionName = "Or"
	ActionPair              ActionName = "Pair"
	ActionFilter            ActionName = "Filter"
)

// Action is a single pipeline operation. Like Element it is a hand-rolled
// tagged union: only the fields relevant to Name are populated. The three
// combinators (Or, Pair, Filter) carry their own nested action lists; the
// executor runs each list through the driver on a one-element seed.
type Action struct {
	Name ActionName

	EmailAttr EmailAttribute
	Regex     string
	Template  string
	Selector  string
	Attr      string
	Query     string
	Index     int
	MacroName string

	Left  []Action
	Right []Action
}

// UnmarshalJSON decodes the adjacently-tagged {"name","arguments"} wire
// format. The tag is peeked with gjson before the argument shape (bare
// scalar, tuple array, or nested action lists) is decided, since the
// argument shape depends entirely on which variant named it.
func (a *Action) UnmarshalJSON(data []byte) error {
	parsed := gjson.ParseBytes(data)
	name := parsed.Get("name")
	if !name.Exists() {
		return InvalidInput("action missing name")
	}
	a.Name = ActionName(name.String())

	argsResult := parsed.Get("arguments")
	var args json.RawMessage
	if argsResult.Exists() {
		args = json.RawMessage(argsResult.Raw)
	}

	switch a.Name {
	case ActionEmailToHtml, ActionHtmlInnerText, ActionHtmlOuterHtml, ActionHtmlInnerHtml,
		ActionTextToHtml, ActionTextToUrl, ActionUrlToText, ActionUrlFollowRedirect,
		ActionPairGetLeft, ActionPairGetRight, ActionPairZipTogether,
		ActionPairDistributeLeft, ActionPairRightLeft:
		return nil

	case ActionEmailGetAttr:
		return json.Unmarshal(args, &a.EmailAttr)

	case ActionHtmlGetAttr:
		return json.Unmarshal(args, &a.Attr)

	case ActionHtmlSelectCss, ActionHtmlFilterCss:
		return json.Unmarshal(args, &a.Selector)

	case ActionTextFilterRegex:
		return json.Unmarshal(args, &a.Regex)

	case ActionUrlGetQuery:
		return json.Unmarshal(args, &a.Query)

	case ActionUrlGetSegment, ActionArraySelectNth:
		return json.Unmarshal(args, &a.Index)

	case ActionMacro:
		return json.Unmarshal(args, &a.MacroName)

	case ActionEmailFilterRegex:
		var tuple [2]json.RawMessage
		if err := json.Unmarshal(args, &tuple); err != nil {
			return InvalidInput(fmt.Sprintf("EmailFilterRegex: %v", err))
		}
		if err := json.Unmarshal(tuple[0], &a.EmailAttr); err != nil {
			return InvalidInput(fmt.Sprintf("EmailFilterRegex attribute: %v", err))
		}
		return json.Unmarshal(tuple[1], &a.Regex)

	case ActionTextMatchRegex:
		var tuple [2]string
		if err := json.Unmarshal(args, &tuple); err != nil {
			return InvalidInput(fmt.Sprintf("TextMatchRegex: %v", err))
		}
		a.Regex, a.Template = tuple[0], tuple[1]
		return nil

	case ActionFilter:
		return json.Unmarshal(args, &a.Left)

	case ActionOr, ActionPair:
		var tuple [2][]Action
		if err := json.Unmarshal(args, &tuple); err != nil {
			return InvalidInput(fmt.Sprintf("%s: %v", a.Name, err))
		}
		a.Left, a.Right = tuple[0], tuple[1]
		return nil

	default:
		return InvalidInput(string(a.Name))
	}
}

func (a Action) MarshalJSON() ([]byte, error) {
	type wire struct {
		Name      ActionName  `json:"name"`
		Arguments interface{} `json:"arguments,omitempty"`
	}
	switch a.Name {
	case ActionEmailToHtml, ActionHtmlInnerText, ActionHtmlOuterHtml, ActionHtmlInnerHtml,
		ActionTextToHtml, ActionTextToUrl, ActionUrlToText, ActionUrlFollowRedirect,
		ActionPairGetLeft, ActionPairGetRight, ActionPairZipTogether,
		ActionPairDistributeLeft, ActionPairRightLeft:
		return json.Marshal(wire{Name: a.Name})
	case ActionEmailGetAttr:
		return json.Marshal(wire{Name: a.Name, Arguments: a.EmailAttr})
	case ActionHtmlGetAttr:
		return json.Marshal(wire{Name: a.Name, Arguments: a.Attr})
	case ActionHtmlSelectCss, ActionHtmlFilterCss:
		return json.Marshal(wire{Name: a.Name, Arguments: a.Selector})
	case ActionTextFilterRegex:
		return json.Marshal(wire{Name: a.Name, Arguments: a.Regex})
	case ActionUrlGetQuery:
		return json.Marshal(wire{Name: a.Name, Arguments: a.Query})
	case ActionUrlGetSegment, ActionArraySelectNth:
		return json.Marshal(wire{Name: a.Name, Arguments: a.Index})
	case ActionMacro:
		return json.Marshal(wire{Name: a.Name, Arguments: a.MacroName})
	case ActionEmailFilterRegex:
		return json.Marshal(wire{Name: a.Name, Arguments: []interface{}{a.EmailAttr, a.Regex}})
	case ActionTextMatchRegex:
		return json.Marshal(wire{Name: a.Name, Arguments: []interface{}{a.Regex, a.Template}})
	case ActionFilter:
		return json.Marshal(wire{Name: a.Name, Arguments: a.Left})
	case ActionOr, ActionPair:
		return json.Marshal(wire{Name: a.Name, Arguments: []interface{}{a.Left, a.Right}})
	default:
		return json.Marshal(wire{Name: a.Name})
	}
}
