// Package action maps the agent's executed-action payloads onto a closed set
// of action kinds and renders them as canonical signatures such as
// click[17] or fill_form[4,hello].
package action

import (
	"fmt"
	"strings"
)

// Kind is an agent action kind. The integer values are the legacy codes used
// by the action-execution layer and must not be renumbered.
type Kind int

const (
	None Kind = iota
	Click
	Goto
	GoogleSearch
	FillForm
	SwitchTab
	GoBack
	FillSearch
	SelectOption
	Hover
	ScrollDown
	ScrollUp
	CacheData
	GetFinalAnswer
)

var kindNames = [...]string{
	None:           "none",
	Click:          "click",
	Goto:           "goto",
	GoogleSearch:   "google_search",
	FillForm:       "fill_form",
	SwitchTab:      "switch_tab",
	GoBack:         "go_back",
	FillSearch:     "fill_search",
	SelectOption:   "select_option",
	Hover:          "hover",
	ScrollDown:     "scroll_down",
	ScrollUp:       "scroll_up",
	CacheData:      "cache_data",
	GetFinalAnswer: "get_final_answer",
}

// Kinds returns every kind in code order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range kindNames {
		out[i] = Kind(i)
	}
	return out
}

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Code is the legacy integer encoding.
func (k Kind) Code() int { return int(k) }

func (k Kind) Valid() bool { return k >= None && int(k) < len(kindNames) }

// KindFromCode resolves a legacy integer code.
func KindFromCode(code int) (Kind, bool) {
	k := Kind(code)
	if !k.Valid() {
		return None, false
	}
	return k, true
}

// ParseKind resolves a kind name case-insensitively ("CLICK", "click").
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return None, false
}
