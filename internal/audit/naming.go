package audit

import (
	"fmt"
	"strings"

	"github.com/stoewer/go-strcase"
)

// NamingStyle selects the casing used for table and column names in audit rows.
type NamingStyle string

const (
	NamingNone       NamingStyle = "none"
	NamingSnake      NamingStyle = "snake"
	NamingUpperSnake NamingStyle = "upper_snake"
	NamingKebab      NamingStyle = "kebab"
	NamingCamel      NamingStyle = "camel"
	NamingPascal     NamingStyle = "pascal"
)

// NamingPolicy converts an identifier for human-facing audit output.
type NamingPolicy func(identifier string) string

// ParseNamingStyle validates s. An empty string selects NamingSnake.
func ParseNamingStyle(s string) (NamingStyle, error) {
	style := NamingStyle(strings.ToLower(strings.TrimSpace(s)))
	if style == "" {
		return NamingSnake, nil
	}
	switch style {
	case NamingNone, NamingSnake, NamingUpperSnake, NamingKebab, NamingCamel, NamingPascal:
		return style, nil
	}
	return "", fmt.Errorf("unknown naming style %q", s)
}

// Convert applies style to identifier.
func Convert(identifier string, style NamingStyle) string {
	switch style {
	case NamingSnake:
		return strcase.SnakeCase(identifier)
	case NamingUpperSnake:
		return strcase.UpperSnakeCase(identifier)
	case NamingKebab:
		return strcase.KebabCase(identifier)
	case NamingCamel:
		return strcase.LowerCamelCase(identifier)
	case NamingPascal:
		return strcase.UpperCamelCase(identifier)
	default:
		return identifier
	}
}

// Policy returns the NamingPolicy for style.
func (s NamingStyle) Policy() NamingPolicy {
	return func(identifier string) string {
		return Convert(identifier, s)
	}
}
