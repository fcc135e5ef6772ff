package dispatcher

import (
	"regexp"
	"strings"
)

var endpointPrefix = regexp.MustCompile(`(?i)^/?(api/)?`)

// NormalizeEndpoint strips a leading "/", a leading "api/" and trailing slashes.
func NormalizeEndpoint(endpoint string) string {
	endpoint = endpointPrefix.ReplaceAllString(strings.TrimSpace(endpoint), "")
	return strings.TrimRight(endpoint, "/")
}

// NormalizeMethod lower-cases method, defaulting to get.
func NormalizeMethod(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return "get"
	}
	return method
}

// TrimData returns a deep copy of data with every string value trimmed, at any
// depth of objects and arrays.
func TrimData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return copyValue(data, true).(map[string]any)
}

// CloneData returns an untouched deep copy of data.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	return copyValue(data, false).(map[string]any)
}

func copyValue(v any, trim bool) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = copyValue(val, trim)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = copyValue(val, trim)
		}
		return out
	case string:
		if trim {
			return strings.TrimSpace(t)
		}
		return t
	default:
		return v
	}
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
