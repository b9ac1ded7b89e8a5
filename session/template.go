package session

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/julez-dev/encore/event"
)

var identifierRE = regexp.MustCompile(`\$([a-z][a-z0-9]*)`)

// ExpandTemplate substitutes $identifier tokens in a command template
// with values from the event payload. Unknown identifiers are left
// untouched so typos stay visible in the sent message.
func ExpandTemplate(template string, params event.CommandParameters) string {
	return identifierRE.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1:]

		switch name {
		case "username":
			if params.User != nil {
				return params.User.Name()
			}

			return token
		case "userlogin":
			if params.User != nil {
				return params.User.Login
			}

			return token
		case "targetusername":
			if params.TargetUser != nil {
				return params.TargetUser.Name()
			}

			return token
		case "platform":
			return params.Platform.String()
		case "allargs":
			return strings.Join(params.Arguments, " ")
		}

		if value, ok := params.SpecialIdentifiers[name]; ok {
			return value
		}

		// positional arguments: $arg1 is the first word
		if rest, ok := strings.CutPrefix(name, "arg"); ok {
			if n, err := strconv.Atoi(rest); err == nil && n >= 1 && n <= len(params.Arguments) {
				return params.Arguments[n-1]
			}
		}

		return token
	})
}
