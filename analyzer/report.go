package analyzer

// Severity of a Suggestion.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Report is the result of one Analyze call. It is not modified afterwards.
type Report struct {
	Functions    []Function    `json:"functions" yaml:"functions"`
	Variables    []Variable    `json:"variables" yaml:"variables"`
	Loops        []Loop        `json:"loops" yaml:"loops"`
	Conditionals []Conditional `json:"conditionals" yaml:"conditionals"`
	Complexity   int           `json:"complexity" yaml:"complexity"`
	Dependencies Dependencies  `json:"dependencies" yaml:"dependencies"`
	Suggestions  []Suggestion  `json:"suggestions" yaml:"suggestions"`
	Metrics      Metrics       `json:"metrics" yaml:"metrics"`
}

// Function describes a function declaration, expression, arrow or method.
type Function struct {
	Kind       string   `json:"kind" yaml:"kind"` // declaration, expression, arrow, method
	Name       string   `json:"name" yaml:"name"`
	Params     []string `json:"params" yaml:"params"`
	Line       int      `json:"line" yaml:"line"`
	Column     int      `json:"column" yaml:"column"`
	Complexity int      `json:"complexity" yaml:"complexity"`
	Recursive  bool     `json:"recursive" yaml:"recursive"`
}

// Variable describes one declared identifier.
type Variable struct {
	Name           string `json:"name" yaml:"name"`
	Kind           string `json:"kind" yaml:"kind"` // var, let, const
	Line           int    `json:"line" yaml:"line"`
	Column         int    `json:"column" yaml:"column"`
	HasInitializer bool   `json:"hasInitializer" yaml:"hasInitializer"`
	Reassigned     bool   `json:"reassigned" yaml:"reassigned"`
	Scope          string `json:"scope" yaml:"scope"` // global, function, block
}

// Loop describes an iteration statement.
type Loop struct {
	Kind      string `json:"kind" yaml:"kind"` // for, while, do-while, for-in, for-of
	Line      int    `json:"line" yaml:"line"`
	Column    int    `json:"column" yaml:"column"`
	HasInit   bool   `json:"hasInit,omitempty" yaml:"hasInit,omitempty"`
	HasTest   bool   `json:"hasTest,omitempty" yaml:"hasTest,omitempty"`
	HasUpdate bool   `json:"hasUpdate,omitempty" yaml:"hasUpdate,omitempty"`
	Infinite  bool   `json:"infinite" yaml:"infinite"`
}

// Conditional describes an if statement, a ternary or a switch.
type Conditional struct {
	Kind       string `json:"kind" yaml:"kind"` // if, ternary, switch
	Line       int    `json:"line" yaml:"line"`
	Column     int    `json:"column" yaml:"column"`
	HasElse    bool   `json:"hasElse,omitempty" yaml:"hasElse,omitempty"`
	ElseIf     bool   `json:"elseIf,omitempty" yaml:"elseIf,omitempty"`
	Complexity int    `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	Cases      int    `json:"cases,omitempty" yaml:"cases,omitempty"`
	HasDefault bool   `json:"hasDefault,omitempty" yaml:"hasDefault,omitempty"`
}

// Import is a module import. Scripts can not contain imports, so the list is
// always empty for programs accepted by the parser.
type Import struct {
	Source     string   `json:"source" yaml:"source"`
	Specifiers []string `json:"specifiers" yaml:"specifiers"`
}

// Dependencies lists the well-known names a program relies on.
type Dependencies struct {
	Builtins []string `json:"builtins" yaml:"builtins"`
	Globals  []string `json:"globals" yaml:"globals"`
	Imports  []Import `json:"imports" yaml:"imports"`
}

// Suggestion is an advisory lint-style message.
type Suggestion struct {
	Kind     string   `json:"type" yaml:"type"` // info, warning, error
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
	Line     int      `json:"line" yaml:"line"`
}

// Metrics are size counters for the whole program.
type Metrics struct {
	Lines       int `json:"linesOfCode" yaml:"linesOfCode"`
	Statements  int `json:"statements" yaml:"statements"`
	Expressions int `json:"expressions" yaml:"expressions"`
	Functions   int `json:"functions" yaml:"functions"`
	Variables   int `json:"variables" yaml:"variables"`
	Complexity  int `json:"complexity" yaml:"complexity"`
}

// Function returns the first function with the given name.
func (r *Report) Function(name string) (Function, bool) {
	for _, f := range r.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return Function{}, false
}

// BySeverity returns the suggestions with the given severity.
func (r *Report) BySeverity(s Severity) []Suggestion {
	var res []Suggestion
	for _, sg := range r.Suggestions {
		if sg.Severity == s {
			res = append(res, sg)
		}
	}
	return res
}
