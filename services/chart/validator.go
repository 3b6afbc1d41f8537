package chart

import (
	"regexp"
	"strings"

	"github.com/samber/lo"
)

var DefaultAllowedImports = []string{"pandas", "plotly", "matplotlib", "numpy", "math", "datetime"}

var defaultForbiddenPatterns = []string{
	`\bos\.`,
	`\bsys\.`,
	`subprocess`,
	`\bshutil\b`,
	`\bpathlib\b`,
	`\bimportlib\b`,
	`\bsocket\b`,
	`\brequests\.`,
	`\burllib\b`,
	`\bhttp\.client\b`,
	`\bpickle\b`,
	`\bmarshal\b`,
	`\bopen\s*\(`,
	`\bexec\s*\(`,
	`\beval\s*\(`,
	`\bcompile\s*\(`,
	`\binput\s*\(`,
	`__import__`,
	`\bglobals\s*\(`,
	`\bgetattr\s*\(`,
	`__(class|subclasses|globals|builtins|bases|mro|code|dict)__`,
	`\.to_csv\s*\(`,
	`\.write_(image|html|json)\s*\(`,
	`\bsavefig\s*\(`,
}

var importLine = regexp.MustCompile(`(?m)^\s*(?:import\s+([\w.]+(?:\s*,\s*[\w.]+)*)|from\s+([\w.]+)\s+import)`)

// CodeValidator screens generated chart code before it reaches the
// interpreter. Passing it does not make code safe.
type CodeValidator struct {
	allowedImports []string
	forbidden      []*regexp.Regexp
	maxCodeLength  int
}

func NewCodeValidator(allowedImports []string) *CodeValidator {
	if len(allowedImports) == 0 {
		allowedImports = DefaultAllowedImports
	}
	return &CodeValidator{
		allowedImports: allowedImports,
		forbidden:      lo.Map(defaultForbiddenPatterns, func(p string, _ int) *regexp.Regexp { return regexp.MustCompile(p) }),
		maxCodeLength:  50000,
	}
}

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "code rejected: " + strings.Join(e.Problems, "; ")
}

func (v *CodeValidator) Validate(code string) error {
	var problems []string

	if strings.TrimSpace(code) == "" {
		return &ValidationError{Problems: []string{"no code returned"}}
	}
	if len(code) > v.maxCodeLength {
		return &ValidationError{Problems: []string{"code exceeds maximum length"}}
	}

	for _, re := range v.forbidden {
		if loc := re.FindString(code); loc != "" {
			problems = append(problems, "forbidden construct "+strings.TrimSpace(loc))
		}
	}

	for _, module := range importedModules(code) {
		root := strings.SplitN(module, ".", 2)[0]
		if !lo.Contains(v.allowedImports, root) {
			problems = append(problems, "import of "+module+" is not allowed")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: lo.Uniq(problems)}
	}
	return nil
}

func importedModules(code string) []string {
	var modules []string
	for _, m := range importLine.FindAllStringSubmatch(code, -1) {
		if m[2] != "" {
			modules = append(modules, m[2])
			continue
		}
		for _, part := range strings.Split(m[1], ",") {
			if name := strings.TrimSpace(part); name != "" {
				modules = append(modules, name)
			}
		}
	}
	return modules
}
