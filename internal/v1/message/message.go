// Package message is the server's canned-string catalog, standing in for
// the localized message collaborator named in spec.md §1 as
// "getMessage(key) -> string". Only the keys the core itself emits are
// stubbed; the proxy front-end's own help strings are out of scope.
package message

// Keys for the canned strings the core emits.
const (
	KeyMOTDTemplateOverflow = "motd-template-too-long"
	KeyMOTDTemplateError    = "motd-template-error"
	KeyOldClientWarning     = "motd-old-client-warning"
)

var catalog = map[string]string{
	KeyMOTDTemplateOverflow: "The message of the day is too long to display.",
	KeyMOTDTemplateError:    "The message of the day could not be generated.",
	KeyOldClientWarning:     "You are using an old version of the client. Please consider updating.",
}

// Get returns the canned string for key, or the key itself if unknown.
func Get(key string) string {
	if s, ok := catalog[key]; ok {
		return s
	}
	return key
}
