package extract_invoice

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackzampolin/docextract/internal/prompts"
	"github.com/jackzampolin/docextract/internal/providers"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed instructions.tmpl
var instructionsTmpl string

// DateFormat is the date layout the model is asked to use.
const DateFormat = "YYYY-MM-DD"

// Prompt keys
const (
	SystemPromptKey       = "extract.invoice.system"
	InstructionsPromptKey = "extract.invoice.instructions"
)

// SystemPrompt returns the embedded system prompt.
func SystemPrompt() string {
	return strings.TrimSpace(systemPrompt)
}

// Instructions renders the embedded instruction prompt.
func Instructions() string {
	text, err := renderInstructions(instructionsTmpl)
	if err != nil {
		return strings.TrimSpace(instructionsTmpl)
	}
	return text
}

// RegisterPrompts registers the invoice prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Invoice extraction system prompt",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         InstructionsPromptKey,
		Text:        instructionsTmpl,
		Description: "Invoice extraction instructions - null for missing values, date format",
	})
}

// Resolve returns the system and instruction text, honoring overrides.
func Resolve(r *prompts.Resolver) (system, instructions string, err error) {
	sys, err := r.Resolve(SystemPromptKey)
	if err != nil {
		return "", "", err
	}
	ins, err := r.Resolve(InstructionsPromptKey)
	if err != nil {
		return "", "", err
	}
	instructions, err = renderInstructions(ins.Text)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(sys.Text), instructions, nil
}

// BuildMessages returns the conversation for one document: the system
// prompt, the instructions, then the document text as its own user message.
func BuildMessages(system, instructions, document string) ([]providers.Message, error) {
	if strings.TrimSpace(document) == "" {
		return nil, fmt.Errorf("document text is empty")
	}
	messages := make([]providers.Message, 0, 3)
	if system != "" {
		messages = append(messages, providers.Message{Role: providers.RoleSystem, Content: system})
	}
	if instructions != "" {
		messages = append(messages, providers.Message{Role: providers.RoleUser, Content: instructions})
	}
	messages = append(messages, providers.Message{Role: providers.RoleUser, Content: document})
	return messages, nil
}

func renderInstructions(text string) (string, error) {
	out, err := prompts.Render(InstructionsPromptKey, text, struct{ DateFormat string }{DateFormat: DateFormat})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
