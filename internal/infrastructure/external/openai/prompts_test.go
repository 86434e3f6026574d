package openai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPrompts(t *testing.T) {
	p := DefaultPrompts()
	assert.Equal(t, 2, p.InvoiceExtraction.MaxPages)
	assert.Equal(t, 4096, p.InvoiceExtraction.MaxTokens)
	assert.NotEmpty(t, p.InvoiceExtraction.System)
	assert.Contains(t, p.InvoiceExtraction.UserTemplate, "{{.Pages}}")
}

func TestLoadPrompts_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("invoice_extraction:\n  max_pages: 1\n  system: custom\n"), 0o644))

	p, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, 1, p.InvoiceExtraction.MaxPages)
	assert.Equal(t, "custom", p.InvoiceExtraction.System)
	assert.Equal(t, 4096, p.InvoiceExtraction.MaxTokens)
}

func TestLoadPrompts_MissingFile(t *testing.T) {
	_, err := LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRenderTemplate(t *testing.T) {
	out, err := renderTemplate("read {{.Pages}} pages", map[string]int{"Pages": 3})
	require.NoError(t, err)
	assert.Equal(t, "read 3 pages", out)

	_, err = renderTemplate("{{.Broken", nil)
	assert.Error(t, err)
}
