package analyzer

import (
	"sort"

	"github.com/dlclark/regexp2"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

var builtinFunctions = []string{"parseInt", "parseFloat", "isNaN", "isFinite", "setTimeout", "setInterval"}

var globalObjects = []string{"console", "Math", "Date", "Array", "Object", "String", "Number", "JSON", "Map", "Set"}

// namingRule accepts camelCase, PascalCase and CONSTANT_CASE identifiers with
// optional leading underscores, and rejects snake_case (an underscore
// followed by a lower case letter after the leading run).
var namingRule = regexp2.MustCompile(`^_*(?!.*_[a-z])[A-Za-z$][A-Za-z0-9$_]*$|^_+$`, regexp2.None)

func isBuiltinFunction(name string) bool {
	for _, b := range builtinFunctions {
		if b == name {
			return true
		}
	}
	return false
}

func isGlobalObject(name string) bool {
	for _, g := range globalObjects {
		if g == name {
			return true
		}
	}
	return false
}

// maxSuggestDistance bounds how far a misspelt call may be from a builtin
// before it is no longer reported.
const maxSuggestDistance = 2

// closestBuiltin returns the builtin function name closest to name, or ""
// when nothing is close enough.
func closestBuiltin(name string) string {
	if len(name) < 4 {
		return ""
	}
	ranks := fuzzy.RankFindFold(name, builtinFunctions)
	if len(ranks) == 0 {
		// RankFind only matches when name is a subsequence of the target;
		// try the other direction for extra characters.
		for _, b := range builtinFunctions {
			if fuzzy.MatchFold(b, name) {
				ranks = append(ranks, fuzzy.Rank{Source: name, Target: b, Distance: len(name) - len(b)})
			}
		}
	}
	sort.Sort(ranks)
	for _, r := range ranks {
		if r.Target != name && r.Distance <= maxSuggestDistance {
			return r.Target
		}
	}
	return ""
}
