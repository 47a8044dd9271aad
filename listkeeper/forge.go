package listkeeper

import (
	"regexp"
	"strings"
)

// forgeMessagePattern matches the forge bot's announcement text, e.g.
// "The Unique Frostbite has been forged by Aeldra!", capturing the item
// and the crafter. The trailing group stops at "!", end of input, or a
// following mention.
var forgeMessagePattern = regexp.MustCompile(
	`(?i)The Unique\s+([a-zA-Z0-9_\-\s'.]+?)\s+has been forged by\s+([a-zA-Z0-9_\-\s'.]+?)(?:!|$|\s+@)`,
)

// parseForgeMessage extracts the item and owner from a forge announcement.
// Returns ok=false when the message isn't a forge announcement.
func parseForgeMessage(content string) (item string, owner string, ok bool) {
	m := forgeMessagePattern.FindStringSubmatch(content)
	if m == nil {
		return "", "", false
	}
	item = strings.TrimSpace(m[1])
	owner = strings.TrimSpace(m[2])
	if item == "" || owner == "" {
		return "", "", false
	}
	return item, owner, true
}
