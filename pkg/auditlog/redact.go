package auditlog

import (
	"encoding/json"
	"strings"
)

// Header keys never written to an audit record.
const (
	HeaderAPIKey      = "janis-api-key"
	HeaderAPISecret   = "janis-api-secret"
	HeaderServiceName = "janis-service-name"

	serviceKeyPrefix = "service-"
)

// RedactHeaders returns a copy of headers without the API credentials. When the
// API key names a service account the service name is added.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		switch strings.ToLower(k) {
		case HeaderAPIKey, HeaderAPISecret:
			continue
		}
		out[k] = v
	}
	for k, v := range headers {
		if strings.ToLower(k) == HeaderAPIKey && strings.HasPrefix(v, serviceKeyPrefix) {
			out[HeaderServiceName] = strings.TrimPrefix(v, serviceKeyPrefix)
		}
	}
	return out
}

// OmitRecursive returns a copy of value with every key in exclude removed from
// objects at any depth. Arrays are kept as they are, including objects inside
// them. Values that are not generic JSON trees are converted through JSON first.
func OmitRecursive(value any, exclude []string) any {
	if len(exclude) == 0 {
		return value
	}
	set := make(map[string]struct{}, len(exclude))
	for _, k := range exclude {
		set[k] = struct{}{}
	}
	return omit(toTree(value), set)
}

func omit(value any, exclude map[string]struct{}) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, skip := exclude[k]; skip {
			continue
		}
		out[k] = omit(v, exclude)
	}
	return out
}

func toTree(value any) any {
	switch value.(type) {
	case nil, map[string]any, []any, string, bool, float64, int, int64, json.Number:
		return value
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return value
	}
	return tree
}

func cloneHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
