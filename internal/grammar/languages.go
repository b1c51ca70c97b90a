// Package grammar resolves the closed set of supported language identifiers
// to compiled tree-sitter grammar modules and caches them for the lifetime
// of the process.
package grammar

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language is one of the closed set of identifiers this service accepts.
type Language string

const (
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	Python     Language = "python"
	Java       Language = "java"
	Go         Language = "go"
	Rust       Language = "rust"
	Cpp        Language = "cpp"
	C          Language = "c"
	CSharp     Language = "csharp"
	Ruby       Language = "ruby"
)

// loaders maps each closed-set identifier to the function that produces its
// grammar handle. Building the handle is cheap but not free, so the
// Registry still memoizes it; the table itself is what makes the set
// closed — there is no path that accepts an identifier outside this map.
var loaders = map[Language]func() *sitter.Language{
	JavaScript: javascript.GetLanguage,
	TypeScript: typescript.GetLanguage,
	Python:     python.GetLanguage,
	Java:       java.GetLanguage,
	Go:         golang.GetLanguage,
	Rust:       rust.GetLanguage,
	Cpp:        cpp.GetLanguage,
	C:          c.GetLanguage,
	CSharp:     csharp.GetLanguage,
	Ruby:       ruby.GetLanguage,
}

// All returns the closed set of supported language identifiers in a fixed
// order, for stable output (used by the /v1/languages endpoint).
func All() []Language {
	return []Language{JavaScript, TypeScript, Python, Java, Go, Rust, Cpp, C, CSharp, Ruby}
}

// Extensions maps a recognized filename extension (including the leading
// dot) to a language identifier, for the CLI's glob/batch mode.
var Extensions = map[string]Language{
	".js":   JavaScript,
	".jsx":  JavaScript,
	".mjs":  JavaScript,
	".ts":   TypeScript,
	".tsx":  TypeScript,
	".py":   Python,
	".java": Java,
	".go":   Go,
	".rs":   Rust,
	".cpp":  Cpp,
	".cc":   Cpp,
	".hpp":  Cpp,
	".c":    C,
	".h":    C,
	".cs":   CSharp,
	".rb":   Ruby,
}
