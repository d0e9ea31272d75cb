package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

func trim(s string) string { return strings.TrimSpace(s) }

// splitAssignment recognizes the `name = literal` form.
func splitAssignment(script string) (name, literal string, ok bool) {
	idx := strings.Index(script, "=")
	if idx <= 0 || (idx+1 < len(script) && script[idx+1] == '=') {
		return "", "", false
	}
	name = trim(script[:idx])
	literal = trim(script[idx+1:])
	if !isIdentifier(name) || literal == "" {
		return "", "", false
	}
	return name, literal, true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func parseLiteral(s string) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("not a literal: %s", s)
	}
	return v, nil
}
