package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderProcedure(t *testing.T) {
	out, err := RenderProcedure("run {{.Specialization}} checks on {{lower .Description}}", map[string]any{
		"Description":    "Build The Importer",
		"Specialization": "coder",
	})
	require.NoError(t, err)
	assert.Equal(t, "run coder checks on build the importer", out)
}

func TestRenderProcedurePlainTextFastPath(t *testing.T) {
	out, err := RenderProcedure("stream rows and batch inserts", nil)
	require.NoError(t, err)
	assert.Equal(t, "stream rows and batch inserts", out)
}

func TestRenderProcedureBadTemplate(t *testing.T) {
	_, err := RenderProcedure("{{.Unclosed", nil)
	require.Error(t, err)
}
