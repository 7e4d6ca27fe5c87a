package personalize

import (
	"github.com/osteele/liquid"
)

// PreviewResult is a rendered sample of campaign content for one recipient.
type PreviewResult struct {
	Subject    string   `json:"subject"`
	Content    string   `json:"content"`
	Unresolved []string `json:"unresolved,omitempty"`
	// SyntaxError is set when the content contains malformed template markup
	// that the send path would ship as literal text.
	SyntaxError string `json:"syntax_error,omitempty"`
}

// Previewer renders content exactly as a send would and reports placeholders
// that stay unresolved. Template defaults fill gaps the recipient does not.
// The liquid engine only checks syntax; tags are not executed.
type Previewer struct {
	engine *liquid.Engine
}

// NewPreviewer creates a Previewer.
func NewPreviewer() *Previewer {
	return &Previewer{engine: liquid.NewEngine()}
}

// Preview renders subject and content for d. defaults are template or global
// variable values and have the lowest precedence.
func (p *Previewer) Preview(subject, content string, d Data, defaults map[string]string) *PreviewResult {
	d.Vars = mergeDefaults(d.Vars, defaults)

	res := &PreviewResult{
		Subject: Render(subject, d),
		Content: Render(content, d),
	}
	res.Unresolved = appendUnique(Unresolved(subject, d), Unresolved(content, d)...)

	for _, text := range []string{subject, content} {
		if _, err := p.engine.ParseString(text); err != nil {
			res.SyntaxError = err.Error()
			break
		}
	}
	return res
}

func mergeDefaults(vars, defaults map[string]string) map[string]string {
	if len(defaults) == 0 {
		return vars
	}
	merged := make(map[string]string, len(vars)+len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	return merged
}

func appendUnique(dst []string, names ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, n := range dst {
		seen[n] = true
	}
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			dst = append(dst, n)
		}
	}
	return dst
}
