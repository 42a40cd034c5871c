// Package gitignore implements .gitignore pattern matching for the
// file scanner.
//
// The syntax follows https://git-scm.com/docs/gitignore: glob
// wildcards, "**" spanning directories, trailing-slash directory
// patterns, leading-slash anchoring, and "!" negation with
// last-match-wins ordering. Patterns read from a nested .gitignore
// keep their scope through the base argument of AddPatternWithBase
// and AddFromFile.
//
// A Matcher is safe for concurrent use.
package gitignore
