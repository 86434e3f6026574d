package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptConfig holds the prompts and model parameters used by the invoice extractor
type PromptConfig struct {
	InvoiceExtraction struct {
		Temperature  float32 `yaml:"temperature"`
		MaxTokens    int     `yaml:"max_tokens"`
		MaxPages     int     `yaml:"max_pages"`
		System       string  `yaml:"system"`
		UserTemplate string  `yaml:"user_template"`
	} `yaml:"invoice_extraction"`
}

const defaultPrompts = `
invoice_extraction:
  temperature: 0.1
  max_tokens: 4096
  max_pages: 2
  system: |
    You read purchase invoices for precious-metal scrap. Respond only with a JSON object.
  user_template: |
    Extract the invoice grand total and every weight line from the attached {{.Pages}} page(s).
    Respond with JSON of the form:
    {"total": <number or null>, "lines": [{"bruto": <grams>, "ley": <fineness per mille or null>}], "notes": "<free text>"}
    Use a dot as decimal separator. Keep negative weights negative. Set total to null if no total is legible.
`

// DefaultPrompts returns the built-in prompt configuration
func DefaultPrompts() *PromptConfig {
	var prompts PromptConfig
	if err := yaml.Unmarshal([]byte(defaultPrompts), &prompts); err != nil {
		panic(fmt.Sprintf("invalid built-in prompts: %v", err))
	}
	return &prompts
}

// LoadPrompts loads prompt configuration from YAML file.
// Fields left empty in the file keep their built-in values.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	prompts := DefaultPrompts()
	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	return prompts, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
