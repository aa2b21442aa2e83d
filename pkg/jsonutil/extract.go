// Package jsonutil handles the JSON that comes back from language models:
// extraction out of prose, sanitization of non-JSON literals, and lenient
// scalar coercion.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches <think>...</think> tags that may appear at the start of LLM responses.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// fencePattern matches fenced code blocks, keeping their inner content.
var fencePattern = regexp.MustCompile("(?s)```(?:json|javascript|js)?\\s*(.*?)\\s*```")

// pythonLiteralPatterns rewrite language-native literals models leak into
// JSON: Python booleans/None and Mongo shell type wrappers.
var (
	pyTruePattern  = regexp.MustCompile(`\bTrue\b`)
	pyFalsePattern = regexp.MustCompile(`\bFalse\b`)
	pyNonePattern  = regexp.MustCompile(`\bNone\b`)
	wrapperPattern = regexp.MustCompile(`(?:new\s+)?(?:ObjectId|ISODate|Date|NumberLong|NumberInt|NumberDecimal)\(\s*("[^"]*"|'[^']*'|[^)]*)\s*\)`)
	singleQuoteArg = regexp.MustCompile(`^'(.*)'$`)
)

// SanitizeModelOutput normalizes an LLM reply so that the JSON inside it
// parses: code fences unwrapped, Python booleans lowercased, shell type
// wrappers like ObjectId("...") reduced to their inner value.
func SanitizeModelOutput(response string) string {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")
	cleaned = fencePattern.ReplaceAllString(cleaned, "$1")
	cleaned = pyTruePattern.ReplaceAllString(cleaned, "true")
	cleaned = pyFalsePattern.ReplaceAllString(cleaned, "false")
	cleaned = pyNonePattern.ReplaceAllString(cleaned, "null")
	cleaned = wrapperPattern.ReplaceAllStringFunc(cleaned, func(m string) string {
		sub := wrapperPattern.FindStringSubmatch(m)
		arg := strings.TrimSpace(sub[1])
		if q := singleQuoteArg.FindStringSubmatch(arg); q != nil {
			return `"` + q[1] + `"`
		}
		if arg == "" {
			return `""`
		}
		return arg
	})
	return cleaned
}

// ExtractJSON extracts JSON content from an LLM response that may contain
// <think> tags, markdown code blocks, or surrounding prose.
func ExtractJSON(response string) (string, error) {
	cleaned := SanitizeModelOutput(response)

	// Find the first occurrence of { or [ to determine JSON type
	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if jsonStr, ok := extractBalancedJSON(cleaned, '{', '}'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	if arrStart >= 0 {
		if jsonStr, ok := extractBalancedJSON(cleaned, '[', ']'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// extractBalancedJSON finds the first balanced JSON structure starting with
// openChar, counting bracket depth and honoring string literals.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// ParseModelJSON extracts JSON from a model reply and unmarshals it into T.
// Unknown fields are discarded by encoding/json semantics; callers validate
// required fields afterwards.
func ParseModelJSON[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}

	return result, nil
}
