// Package compliance decides whether analyst SQL has handled the protected
// patient cohort before it may be sent to a backend.
//
// A query is compliant when the governance marker table is referenced as a
// whole word in the query body, or when the marker is named in a single-line
// comment as an explicit acknowledgment.
package compliance

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// DefaultMarker is the table listing patients whose records may be used.
// It superseded the longer AllowedPatientsWithTypeOneDissent, which must not
// satisfy the gate.
const DefaultMarker = "PatientsWithTypeOneDissent"

var ErrComplianceViolation = errors.New("compliance violation")

// Rule names the reason a verdict was reached.
type Rule string

const (
	RuleMissing    Rule = "missing"
	RuleComment    Rule = "comment"
	RuleMembership Rule = "membership"
	RuleJoin       Rule = "join"
	RuleReference  Rule = "reference"
	RuleFrom       Rule = "from"
	RuleExclusion  Rule = "exclusion"
)

// rank orders code-body rules from strongest to weakest.
var rank = map[Rule]int{
	RuleMembership: 0,
	RuleJoin:       1,
	RuleReference:  2,
	RuleFrom:       3,
	RuleExclusion:  4,
}

type Policy string

const (
	// PolicyStandard accepts any whole-word occurrence of the marker.
	PolicyStandard Policy = "standard"
	// PolicyStrict accepts only the comment acknowledgment or an IN membership test.
	PolicyStrict Policy = "strict"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStandard:
		return PolicyStandard, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("unknown compliance policy %q", s)
}

type Verdict struct {
	Compliant bool
	Rule      Rule
	Marker    string
}

// Weak reports whether the marker was found only in a position that does not
// restrict the result to the permitted cohort.
func (v Verdict) Weak() bool {
	return v.Rule == RuleFrom || v.Rule == RuleExclusion
}

var (
	introducerPattern = regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+(?:\[?\w+\]?\s*\.\s*)*\[?$`)
	notInPattern      = regexp.MustCompile(`(?i)\bNOT\s+IN\s*$`)
	inPattern         = regexp.MustCompile(`(?i)\bIN\s*$`)
)

type Gate struct {
	marker string
	word   *regexp.Regexp
	policy Policy
}

func NewGate(marker string, policy Policy) (*Gate, error) {
	if err := validateMarker(marker); err != nil {
		return nil, err
	}
	if policy == "" {
		policy = PolicyStandard
	}
	return &Gate{
		marker: marker,
		word:   regexp.MustCompile(`\b` + regexp.QuoteMeta(marker) + `\b`),
		policy: policy,
	}, nil
}

func (g *Gate) Marker() string { return g.marker }

func (g *Gate) Policy() Policy { return g.policy }

// Check is a pure predicate over the SQL text.
func (g *Gate) Check(sqlText string) Verdict {
	code, comments := splitComments(sqlText)

	for _, comment := range comments {
		if g.word.MatchString(comment) {
			return Verdict{Compliant: true, Rule: RuleComment, Marker: g.marker}
		}
	}

	best := RuleMissing
	for _, loc := range g.word.FindAllStringIndex(code, -1) {
		rule := classifyReference(code[:loc[0]])
		if best == RuleMissing || rank[rule] < rank[best] {
			best = rule
		}
	}

	verdict := Verdict{Rule: best, Marker: g.marker}
	switch g.policy {
	case PolicyStrict:
		verdict.Compliant = best == RuleMembership
	default:
		verdict.Compliant = best != RuleMissing
	}
	return verdict
}

// Require returns an error wrapping ErrComplianceViolation when the verdict
// is negative.
func (g *Gate) Require(sqlText string) (Verdict, error) {
	verdict := g.Check(sqlText)
	if verdict.Compliant {
		return verdict, nil
	}
	if verdict.Rule == RuleMissing {
		return verdict, fmt.Errorf("%w: query does not reference %s; add it to the query or acknowledge it in a comment (-- %s ...)",
			ErrComplianceViolation, g.marker, g.marker)
	}
	return verdict, fmt.Errorf("%w: %s is only referenced as %s, %s policy requires an IN membership test or an acknowledging comment",
		ErrComplianceViolation, g.marker, verdict.Rule, g.policy)
}

// splitComments separates each line at its first "--" into code and comment.
func splitComments(sqlText string) (string, []string) {
	lines := strings.Split(sqlText, "\n")
	var comments []string
	for i, line := range lines {
		if idx := strings.Index(line, "--"); idx >= 0 {
			comments = append(comments, line[idx+2:])
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n"), comments
}

func classifyReference(before string) Rule {
	m := introducerPattern.FindStringSubmatch(before)
	if m == nil {
		return RuleReference
	}
	if strings.EqualFold(m[1], "JOIN") {
		return RuleJoin
	}

	open := innermostOpenParen(before)
	if open < 0 {
		return RuleFrom
	}
	prefix := before[:open]
	switch {
	case notInPattern.MatchString(prefix):
		return RuleExclusion
	case inPattern.MatchString(prefix):
		return RuleMembership
	}
	return RuleFrom
}

func innermostOpenParen(s string) int {
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ')':
			depth++
		case '(':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

func validateMarker(name string) error {
	if name == "" {
		return fmt.Errorf("compliance marker is empty")
	}
	for i, r := range name {
		if i == 0 {
			if !(unicode.IsLetter(r) || r == '_') {
				return fmt.Errorf("compliance marker %q must start with letter/_", name)
			}
		} else if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return fmt.Errorf("compliance marker %q has invalid char", name)
		}
	}
	return nil
}
