package protocol

import (
	"regexp"
	"strings"

	"github.com/weebpoly/syncplay-go/internal/v1/config"
	"github.com/weebpoly/syncplay-go/internal/v1/feature"
	"github.com/weebpoly/syncplay-go/internal/v1/message"
)

// ServerMaxTemplateLength bounds a rendered MOTD, per spec.md §4.7.
const ServerMaxTemplateLength = 10000

var motdPlaceholder = regexp.MustCompile(`\$\w+`)

// renderMOTD implements spec.md §4.7's MOTD templating: substitute the
// four named placeholders, prepend an old-client warning when configured
// and warranted, and fall back to canned messages on overflow or an
// unresolved placeholder.
func renderMOTD(tmpl string, cfg *config.Config, version, userIP, username, room string) string {
	if tmpl == "" {
		if cfg.OldClientWarning && !feature.IsRecentClient(version) {
			return message.Get(message.KeyOldClientWarning)
		}
		return ""
	}

	substitutions := map[string]string{
		"$version":  version,
		"$userIp":   userIP,
		"$username": username,
		"$room":     room,
	}

	for _, placeholder := range motdPlaceholder.FindAllString(tmpl, -1) {
		if _, known := substitutions[placeholder]; !known {
			return message.Get(message.KeyMOTDTemplateError)
		}
	}

	rendered := tmpl
	for placeholder, value := range substitutions {
		rendered = strings.ReplaceAll(rendered, placeholder, value)
	}

	if cfg.OldClientWarning && !feature.IsRecentClient(version) {
		rendered = message.Get(message.KeyOldClientWarning) + "\n" + rendered
	}

	if len(rendered) >= ServerMaxTemplateLength {
		return message.Get(message.KeyMOTDTemplateOverflow)
	}
	return rendered
}
