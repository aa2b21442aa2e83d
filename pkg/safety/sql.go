package safety

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// RedactedSQL replaces statement text in user-facing responses when SQL
// redaction is enabled.
const RedactedSQL = "[redacted]"

// forbiddenVerbs are rejected wherever they appear as bare tokens outside
// string literals. They have no legitimate place in generated queries.
var forbiddenVerbs = map[string]bool{
	"DROP":     true,
	"TRUNCATE": true,
	"ALTER":    true,
}

var (
	tokenPattern       = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	dollarParamPattern = regexp.MustCompile(`\$(\d+)`)
	limitTailPattern   = regexp.MustCompile(`(?i)\blimit\s+(\d+)((?:\s+offset\s+\d+)?\s*)$`)
	// MySQL's LIMIT offset, count form.
	limitCommaPattern = regexp.MustCompile(`(?i)(\blimit\s+\d+\s*,\s*)(\d+)(\s*)$`)
)

// checkRelational runs the SQL rules in order: single statement, no
// comments, no forbidden verbs, WHERE required on writes, placeholder
// normalization, injection scan over parameters, row cap. On success q.SQL
// and q.Parameters hold the normalized, executable form.
func (g *Gate) checkRelational(q *models.ExecutedQuery) error {
	sqlText := strings.TrimSpace(q.SQL)
	if sqlText == "" {
		return apperrors.New(apperrors.KindBadInput, "empty SQL statement")
	}

	normalized := stripTrailingSemicolon(sqlText)
	blanked := blankStringLiterals(normalized, q.Kind == models.KindMySQL)

	if strings.ContainsRune(blanked, ';') {
		return apperrors.SafetyViolation(apperrors.RuleMultipleStatements,
			"multiple SQL statements are not allowed")
	}

	if tok := commentToken(blanked, q.Kind); tok != "" {
		return apperrors.SafetyViolation(apperrors.RuleSQLComment,
			fmt.Sprintf("SQL comment syntax %q is not allowed", tok))
	}

	tokens := tokenPattern.FindAllString(blanked, -1)
	for _, tok := range tokens {
		if forbiddenVerbs[strings.ToUpper(tok)] {
			return apperrors.SafetyViolation(apperrors.RuleForbiddenVerb,
				fmt.Sprintf("statement verb %s is not allowed", strings.ToUpper(tok)))
		}
	}

	verb := ""
	if len(tokens) > 0 {
		verb = strings.ToUpper(tokens[0])
	}
	if verb == "UPDATE" || verb == "DELETE" {
		if !containsToken(tokens, "WHERE") {
			rule := apperrors.RuleUpdateWithoutWhere
			if verb == "DELETE" {
				rule = apperrors.RuleDeleteWithoutWhere
			}
			return apperrors.SafetyViolation(rule,
				fmt.Sprintf("%s without a WHERE clause affects every row and is not allowed", verb))
		}
	}

	rewritten, params, err := normalizePlaceholders(normalized, blanked, q.Parameters, q.Kind)
	if err != nil {
		return err
	}

	now := g.now().UTC()
	for i := range params {
		params[i] = CoerceSentinels(params[i], false, now)
	}

	if hit := ScanParameters(params); hit != nil {
		return apperrors.SafetyViolation(apperrors.RuleParamInjection,
			fmt.Sprintf("parameter %d matches a SQL injection pattern (fingerprint %s)",
				hit.Position, hit.Fingerprint))
	}

	if verb == "SELECT" || verb == "WITH" {
		rewritten = applyRowCap(rewritten, g.defaultRowCap)
	}

	q.SQL = rewritten
	q.Parameters = params
	return nil
}

// normalizePlaceholders converts between the $N and ? placeholder dialects.
// Postgres statements end up with $1..$N; MySQL statements end up with
// positional ? markers, reordering the parameter slice when the source used
// out-of-order $N references. The bound parameter count must match the
// supplied values exactly.
func normalizePlaceholders(sqlText, blanked string, params []any, kind models.DatabaseKind) (string, []any, error) {
	questionMarks := indexAll(blanked, '?')
	dollarMatches := dollarParamPattern.FindAllStringSubmatchIndex(blanked, -1)

	if len(questionMarks) > 0 && len(dollarMatches) > 0 {
		return "", nil, apperrors.SafetyViolation(apperrors.RuleParamCountMismatch,
			"statement mixes $N and ? placeholder forms")
	}

	switch kind {
	case models.KindPostgres:
		if len(questionMarks) > 0 {
			if len(questionMarks) != len(params) {
				return "", nil, paramCountError(len(questionMarks), len(params))
			}
			var b strings.Builder
			last := 0
			for i, pos := range questionMarks {
				b.WriteString(sqlText[last:pos])
				b.WriteString("$" + strconv.Itoa(i+1))
				last = pos + 1
			}
			b.WriteString(sqlText[last:])
			return b.String(), params, nil
		}
		bound := maxDollarIndex(blanked, dollarMatches)
		if bound != len(params) {
			return "", nil, paramCountError(bound, len(params))
		}
		return sqlText, params, nil

	case models.KindMySQL:
		if len(dollarMatches) > 0 {
			if bound := maxDollarIndex(blanked, dollarMatches); bound != len(params) {
				return "", nil, paramCountError(bound, len(params))
			}
			var b strings.Builder
			var ordered []any
			last := 0
			for _, m := range dollarMatches {
				n, _ := strconv.Atoi(blanked[m[2]:m[3]])
				if n < 1 {
					return "", nil, apperrors.SafetyViolation(apperrors.RuleParamCountMismatch,
						fmt.Sprintf("placeholder $%d is not a valid parameter position", n))
				}
				b.WriteString(sqlText[last:m[0]])
				b.WriteString("?")
				ordered = append(ordered, params[n-1])
				last = m[1]
			}
			b.WriteString(sqlText[last:])
			return b.String(), ordered, nil
		}
		if len(questionMarks) != len(params) {
			return "", nil, paramCountError(len(questionMarks), len(params))
		}
		return sqlText, params, nil
	}

	return sqlText, params, nil
}

func paramCountError(bound, supplied int) error {
	return apperrors.SafetyViolation(apperrors.RuleParamCountMismatch,
		fmt.Sprintf("statement binds %d parameter(s) but %d supplied", bound, supplied))
}

func maxDollarIndex(blanked string, matches [][]int) int {
	max := 0
	for _, m := range matches {
		if n, err := strconv.Atoi(blanked[m[2]:m[3]]); err == nil && n > max {
			max = n
		}
	}
	return max
}

// applyRowCap clamps an existing trailing LIMIT to the cap, or appends one.
// The caller-requested limit never exceeds the configured default.
func applyRowCap(sqlText string, capRows int) string {
	if capRows <= 0 {
		return sqlText
	}
	if m := limitCommaPattern.FindStringSubmatchIndex(sqlText); m != nil {
		n, _ := strconv.Atoi(sqlText[m[4]:m[5]])
		if n > capRows {
			n = capRows
		}
		return sqlText[:m[4]] + strconv.Itoa(n) + sqlText[m[5]:]
	}
	if m := limitTailPattern.FindStringSubmatchIndex(sqlText); m != nil {
		n, _ := strconv.Atoi(sqlText[m[2]:m[3]])
		if n > capRows {
			n = capRows
		}
		return sqlText[:m[2]] + strconv.Itoa(n) + sqlText[m[3]:]
	}
	return sqlText + " LIMIT " + strconv.Itoa(capRows)
}

// commentToken returns the comment opener found outside string literals, or
// "" when the statement is clean. MySQL additionally treats # as a comment.
func commentToken(blanked string, kind models.DatabaseKind) string {
	if strings.Contains(blanked, "--") {
		return "--"
	}
	if strings.Contains(blanked, "/*") {
		return "/*"
	}
	if kind == models.KindMySQL && strings.Contains(blanked, "#") {
		return "#"
	}
	return ""
}

// InjectionHit describes a parameter value flagged by libinjection.
type InjectionHit struct {
	// Position is the 1-based parameter position.
	Position    int
	Fingerprint string
	Value       string
}

// ScanParameters runs libinjection over every string parameter and returns
// the first hit, or nil when all values are clean. Non-string values cannot
// carry SQL injection and are skipped.
func ScanParameters(params []any) *InjectionHit {
	for i, v := range params {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
			return &InjectionHit{
				Position:    i + 1,
				Fingerprint: string(fingerprint),
				Value:       s,
			}
		}
	}
	return nil
}

// blankStringLiterals replaces the contents of single- and double-quoted
// literals with spaces so structural scans (semicolons, comments, tokens,
// placeholders) cannot be fooled by quoted data. Offsets are preserved:
// the result is the same length as the input. The doubled form ('' or "")
// is an escaped quote and stays inside the literal. Backslash escapes are
// honored only when backslashEscapes is set: MySQL treats \' as an escaped
// quote, while Postgres (standard_conforming_strings) reads the backslash
// as a literal character.
func blankStringLiterals(sqlText string, backslashEscapes bool) string {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	out := []byte(sqlText)
	state := stateNormal

	for i := 0; i < len(out); i++ {
		ch := out[i]
		switch state {
		case stateNormal:
			switch ch {
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			switch {
			case ch == '\'' && i+1 < len(out) && out[i+1] == '\'':
				out[i], out[i+1] = ' ', ' '
				i++
			case backslashEscapes && ch == '\\' && i+1 < len(out):
				out[i], out[i+1] = ' ', ' '
				i++
			case ch == '\'':
				state = stateNormal
			default:
				out[i] = ' '
			}
		case stateDoubleQuote:
			switch {
			case ch == '"' && i+1 < len(out) && out[i+1] == '"':
				out[i], out[i+1] = ' ', ' '
				i++
			case backslashEscapes && ch == '\\' && i+1 < len(out):
				out[i], out[i+1] = ' ', ' '
				i++
			case ch == '"':
				state = stateNormal
			default:
				out[i] = ' '
			}
		}
	}

	return string(out)
}

// stripTrailingSemicolon removes one trailing semicolon and surrounding
// whitespace. Any semicolon that remains afterwards separates statements.
func stripTrailingSemicolon(sqlText string) string {
	sqlText = strings.TrimRight(sqlText, " \t\n\r")
	if strings.HasSuffix(sqlText, ";") {
		sqlText = strings.TrimRight(strings.TrimSuffix(sqlText, ";"), " \t\n\r")
	}
	return sqlText
}

func indexAll(s string, ch byte) []int {
	var out []int
	for i := 0; i < len(s); i++ {
		if s[i] == ch {
			out = append(out, i)
		}
	}
	return out
}

func containsToken(tokens []string, want string) bool {
	for _, tok := range tokens {
		if strings.ToUpper(tok) == want {
			return true
		}
	}
	return false
}
