package commsutil

import "fmt"

// Default COMMS subjects.
const (
	SubjectDispatch    = "serene.dispatch.v1"
	SubjectChangeEvent = "serene.changed"
)

// BuildChangeSubject builds the granular change event subject for a
// resource and operation. The resource name is reduced to a single subject
// token.
func BuildChangeSubject(resource, operation string) string {
	return BuildChangeSubjectUnder(SubjectChangeEvent, resource, operation)
}

// BuildChangeSubjectUnder is BuildChangeSubject with a configured global
// change subject as the prefix.
func BuildChangeSubjectUnder(global, resource, operation string) string {
	return fmt.Sprintf("%s.%s.%s", global, subjectToken(resource), operation)
}

// BuildResourceDispatchSubject builds a per-resource dispatch subject under base.
func BuildResourceDispatchSubject(base, resource string) string {
	return fmt.Sprintf("%s.%s", base, subjectToken(resource))
}

// subjectToken maps every byte outside [A-Za-z0-9_-] to '_'. Resource names
// come from clients and must never carry wildcards or control bytes.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	b := []byte(s)
	for i, c := range b {
		if !isTokenByte(c) {
			b[i] = '_'
		}
	}
	return string(b)
}

func isTokenByte(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' || c == '-'
}
