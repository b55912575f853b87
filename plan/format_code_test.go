package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCodeFromFencedBlock(t *testing.T) {
	text := "here is the fragment:\n```python\nprint(1)\n```\n"
	code, ok := ExtractCode(text)
	assert.True(t, ok)
	assert.Equal(t, "print(1)", code)
}

func TestExtractCodeWithoutFenceFallsBackToTrimmedText(t *testing.T) {
	code, ok := ExtractCode("  print(1)  \n")
	assert.True(t, ok)
	assert.Equal(t, "print(1)", code)
}

func TestExtractCodeEmptyTextFails(t *testing.T) {
	_, ok := ExtractCode("   \n  ")
	assert.False(t, ok)
}
