package prompt

import (
	"strings"
)

// NoContextInstruction replaces the context block when nothing was
// retrieved, so the model never answers as if it were grounded.
const NoContextInstruction = "No relevant context was found for this question. " +
	"Tell the student that you can not find the relevant context in the system."

// DefaultAnswerTemplate is the teaching-assistant instruction wrapped around
// the retrieved lecture contexts.
const DefaultAnswerTemplate = `You are a teaching assistant. Given a set of relevant information from the teacher's recording during the lesson (delimited by <info></info>), please compose an answer to the question of a student. Ensure that the answer is accurate, has a friendly tone, and sounds helpful. If you cannot answer, ask the student to clarify the question. If no context is available in the system, please answer that you can not find the relevant context in the system.
<info>
{{.Context}}
</info>
Question: {{.Question}}
Answer: `

var defaultAnswer = MustTemplate("answer", DefaultAnswerTemplate)

// Assembler renders the answer prompt. It is pure: the same contexts and
// question always give the same string.
type Assembler struct {
	tmpl      *Template
	separator string
}

// AssemblerOption customises an Assembler.
type AssemblerOption func(*Assembler)

// WithTemplate swaps the answer template. It receives .Context and
// .Question.
func WithTemplate(t *Template) AssemblerOption {
	return func(a *Assembler) {
		if t != nil {
			a.tmpl = t
		}
	}
}

// NewAssembler returns an Assembler using DefaultAnswerTemplate.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{tmpl: defaultAnswer, separator: "\n\n"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble joins contexts (in the given order, blank-line separated) into
// the template together with the literal question.
func (a *Assembler) Assemble(contexts []string, question string) (string, error) {
	block := NoContextInstruction
	kept := make([]string, 0, len(contexts))
	for _, c := range contexts {
		if strings.TrimSpace(c) != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) > 0 {
		block = strings.Join(kept, a.separator)
	}
	return a.tmpl.Render(map[string]any{
		"Context":  block,
		"Question": question,
	})
}
