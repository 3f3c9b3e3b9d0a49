package llm

import "strings"

// ExtractJSONValue returns the first balanced JSON object or array embedded in
// input, or "" when none is present. Strings and escapes are honored so braces
// inside string literals do not confuse the depth tracking. Models frequently
// wrap their JSON in prose or markdown fences; callers get just the value.
func ExtractJSONValue(input string) string {
	objStart := strings.IndexByte(input, '{')
	arrStart := strings.IndexByte(input, '[')
	start := objStart
	if start == -1 || (arrStart != -1 && arrStart < start) {
		start = arrStart
	}
	if start == -1 {
		return ""
	}
	open := input[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(input); i++ {
		ch := input[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
		}
	}
	return ""
}
