package action

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/signalnine/trajeval/internal/rawlog"
)

// Signatures for payloads that carry no bracketed arguments.
const (
	NoneSignature    = "None"
	UnknownSignature = "unknown_action"
)

const (
	fieldActionType = "action_type"
	fieldElementID  = "element_id"
	fieldURL        = "url"
	fieldFillText   = "fill_text"
)

// Payload is the decoded executed-action payload.
type Payload struct {
	Kind      Kind
	ElementID string
	URL       string
	FillText  string
}

// Decode renders the canonical signature of a raw executed-action payload.
func Decode(raw rawlog.Field) string {
	return Parse(raw).Signature()
}

// Parse reads action_type, element_id, url and fill_text from either a
// structured mapping or the stringified legacy encoding. An unknown or
// missing action_type resolves to None.
func Parse(raw rawlog.Field) Payload {
	if obj, ok := raw.Object(); ok {
		return fromObject(obj)
	}
	if raw.Kind == rawlog.Text {
		return fromText(raw.Text)
	}
	return Payload{Kind: None}
}

func fromObject(obj map[string]rawlog.Field) Payload {
	p := Payload{
		ElementID: argString(obj[fieldElementID]),
		URL:       argString(obj[fieldURL]),
		FillText:  argString(obj[fieldFillText]),
	}
	at := obj[fieldActionType]
	switch at.Kind {
	case rawlog.Number:
		if code, ok := at.Int(); ok {
			p.Kind, _ = KindFromCode(code)
		}
	case rawlog.Text:
		p.Kind = kindFromText(at.Text)
	}
	return p
}

func argString(f rawlog.Field) string {
	s := f.String()
	if s == "None" {
		return ""
	}
	return s
}

func fromText(s string) Payload {
	kv := pairs(lex(s), fieldActionType, fieldElementID, fieldURL, fieldFillText)
	p := Payload{
		ElementID: kv[fieldElementID].text,
		URL:       kv[fieldURL].text,
		FillText:  kv[fieldFillText].text,
	}
	if at, ok := kv[fieldActionType]; ok {
		switch at.kind {
		case tokInt:
			code, _ := strconv.Atoi(at.text)
			p.Kind, _ = KindFromCode(code)
		case tokEnum:
			p.Kind = kindFromEnum(at.text)
		case tokQuoted:
			p.Kind = kindFromText(at.text)
		}
	}
	return p
}

// kindFromEnum resolves the inside of an enum token, "ActionType.CLICK: 1".
// The numeric value wins over the member name when both are present.
func kindFromEnum(s string) Kind {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	name, code, hasCode := strings.Cut(s, ":")
	if hasCode {
		if n, err := strconv.Atoi(strings.TrimSpace(code)); err == nil {
			if k, ok := KindFromCode(n); ok {
				return k
			}
		}
	}
	k, _ := ParseKind(name)
	return k
}

// kindFromText accepts "1", "CLICK", "ActionType.CLICK" or "<ActionType.CLICK: 1>".
func kindFromText(s string) Kind {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		k, _ := KindFromCode(n)
		return k
	}
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		return kindFromEnum(s[1 : len(s)-1])
	}
	return kindFromEnum(s)
}

// Signature renders the canonical action signature.
func (p Payload) Signature() string {
	switch p.Kind {
	case GoogleSearch, CacheData, GetFinalAnswer:
		return fmt.Sprintf("%s[%s]", p.Kind, p.FillText)
	case FillSearch, FillForm, SelectOption:
		return fmt.Sprintf("%s[%s,%s]", p.Kind, p.ElementID, p.FillText)
	case Goto:
		if p.URL == "" {
			return UnknownSignature
		}
		return fmt.Sprintf("goto[%s]", p.URL)
	case Click, GoBack:
		return fmt.Sprintf("%s[%s]", p.Kind, p.ElementID)
	case None:
		return NoneSignature
	default:
		return UnknownSignature
	}
}
