package lang

import (
	"github.com/smacker/go-tree-sitter/javascript"
)

func init() {
	Languages["javascript"] = &Language{
		Name:       "javascript",
		Extensions: []string{".js"},
		lang:       javascript.GetLanguage(),
	}
}

// JavaScript returns the registered JavaScript language.
func JavaScript() *Language {
	return Languages["javascript"]
}

// IsFunction reports whether a node type is a function expression that can
// serve as a module factory. Older grammars name anonymous functions
// "function", newer ones "function_expression".
func IsFunction(nodeType string) bool {
	switch nodeType {
	case "function", "function_expression", "arrow_function":
		return true
	}
	return false
}
