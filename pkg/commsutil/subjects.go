package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectDispatch      = "api.dispatch"
	SubjectDispatchEnded = "api.dispatch.ended"
	SubjectAuditLog      = "api.logs"
)

// BuildAuditLogSubject builds the per-client audit log subject.
func BuildAuditLogSubject(prefix, clientCode string) string {
	if prefix == "" {
		prefix = SubjectAuditLog
	}
	return fmt.Sprintf("%s.%s", prefix, sanitizeToken(clientCode))
}

// BuildDispatchEndedSubject builds the per-entity dispatch ended subject
// (e.g. api.dispatch.ended.products).
func BuildDispatchEndedSubject(entity string) string {
	if entity == "" {
		return SubjectDispatchEnded
	}
	return fmt.Sprintf("%s.%s", SubjectDispatchEnded, sanitizeToken(entity))
}

// sanitizeToken replaces characters NATS treats as subject separators or wildcards.
func sanitizeToken(s string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return r.Replace(s)
}
