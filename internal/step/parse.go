package step

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/signalnine/trajeval/internal/diag"
	"github.com/signalnine/trajeval/internal/rawlog"
)

// NotAvailable is the placeholder for trace fields that could not be read.
const NotAvailable = "N/A"

// Sentinel step_reward encodings.
const (
	rewardEmpty    = "{}"
	rewardFinished = "finished"
	finishedScore  = "10"
)

var (
	thoughtPattern    = regexp.MustCompile(`(?s)['"]thought['"]\s*:\s*(.+?)\s*,\s*['"]action['"]`)
	actionPattern     = regexp.MustCompile(`(?s)['"]action['"]\s*:\s*(.+?)\s*(?:,\s*['"]reflection['"]|\}|$)`)
	reflectionPattern = regexp.MustCompile(`(?s)['"]reflection['"]\s*:\s*(.+?)\s*(?:\}|$)`)

	scorePattern       = regexp.MustCompile(`(?s)['"]score['"]\s*:\s*(.+?)\s*,\s*['"]description['"]`)
	descriptionPattern = regexp.MustCompile(`(?s)['"]description['"]\s*:\s*(.+?)\s*(?:\}|$)`)

	quoteStripper = strings.NewReplacer(`\`, "", `"`, "", `'`, "")
)

// clean strips backslashes and quote characters and trims the result.
func clean(s string) string {
	return strings.TrimSpace(quoteStripper.Replace(s))
}

func capture(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return clean(m[1]), true
}

// ParseTrace extracts thought, action summary and reflection from the planning
// output logged with a step. Each field defaults to NotAvailable on its own.
func ParseTrace(raw rawlog.Field, rep diag.Reporter) Trace {
	t := Trace{Thought: NotAvailable, ActionSummary: NotAvailable, Reflection: NotAvailable}
	if obj, ok := raw.Object(); ok {
		t.Thought = member(obj, "thought")
		t.ActionSummary = member(obj, "action", "action_summary")
		t.Reflection = member(obj, "reflection")
		return t
	}
	if raw.Kind != rawlog.Text {
		diag.OrNop(rep).Warn("unrecognised trace encoding, using placeholders", "kind", raw.Kind.String())
		return t
	}
	if v, ok := capture(thoughtPattern, raw.Text); ok {
		t.Thought = v
	}
	if v, ok := capture(actionPattern, raw.Text); ok {
		t.ActionSummary = v
	}
	if v, ok := capture(reflectionPattern, raw.Text); ok {
		t.Reflection = v
	}
	return t
}

func member(obj map[string]rawlog.Field, keys ...string) string {
	for _, k := range keys {
		if f, ok := obj[k]; ok && f.Present() {
			return clean(f.String())
		}
	}
	return NotAvailable
}

// ParseReward reads the judge's per-step reward. Unrecoverable input yields
// the empty reward, never a partially filled one.
func ParseReward(raw rawlog.Field, rep diag.Reporter) Reward {
	switch raw.Kind {
	case rawlog.Missing, rawlog.Null:
		return Reward{}
	case rawlog.Structured:
		obj, ok := raw.Object()
		if !ok {
			diag.OrNop(rep).Warn("step reward is not an object", "value", raw.Text)
			return Reward{}
		}
		score, okScore := obj["score"]
		desc, okDesc := obj["description"]
		if !okScore || !okDesc || !score.Present() {
			return Reward{}
		}
		return Reward{Score: score.String(), Description: clean(desc.String())}
	case rawlog.Text:
		return parseRewardText(raw.Text, rep)
	default:
		diag.OrNop(rep).Warn("unrecognised step reward encoding", "kind", raw.Kind.String())
		return Reward{}
	}
}

func parseRewardText(s string, rep diag.Reporter) Reward {
	trimmed := strings.TrimSpace(s)
	switch {
	case trimmed == "", strings.EqualFold(trimmed, rewardEmpty):
		return Reward{}
	case strings.EqualFold(trimmed, rewardFinished):
		return Reward{Score: finishedScore, Description: rewardFinished}
	}
	score, okScore := capture(scorePattern, s)
	desc, okDesc := capture(descriptionPattern, s)
	if !okScore || !okDesc {
		diag.OrNop(rep).Debug("step reward did not match", "value", s)
		return Reward{}
	}
	return Reward{Score: score, Description: desc}
}

// SplitScore splits an "n/d" score into its two finite parts. Unlike
// ParseScore it accepts a zero denominator, so pooled sums still count the
// numerator of an "n/0" score.
func SplitScore(raw string) (num, den float64, ok bool) {
	parts := strings.Split(raw, "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	num, err := parseFinite(parts[0])
	if err != nil {
		return 0, 0, false
	}
	den, err = parseFinite(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return num, den, true
}

// ParseScore is SplitScore for scores that can be divided: ok is also false
// when the denominator is zero.
func ParseScore(raw string) (num, den float64, ok bool) {
	num, den, ok = SplitScore(raw)
	if !ok || den == 0 {
		return 0, 0, false
	}
	return num, den, true
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}

// ScoreRate is numerator over denominator of an "n/d" score. A rate is always
// within [0, 1]: a malformed score, a zero denominator or an out-of-range
// ratio such as "11/10" all yield 0 rather than n/d.
func ScoreRate(raw string) float64 {
	num, den, ok := ParseScore(raw)
	if !ok {
		return 0
	}
	r := num / den
	if math.IsNaN(r) || r < 0 || r > 1 {
		return 0
	}
	return r
}
