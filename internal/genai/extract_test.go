package genai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDirectJSON(t *testing.T) {
	raw, ok := Extract(`{"questions": []}`)
	assert.True(t, ok)
	assert.JSONEq(t, `{"questions": []}`, string(raw))
}

func TestExtractDirectArray(t *testing.T) {
	raw, ok := Extract(`  [1, 2, 3]  `)
	assert.True(t, ok)
	assert.JSONEq(t, `[1,2,3]`, string(raw))
}

func TestExtractFencedBlock(t *testing.T) {
	input := "Here is your assessment:\n```json\n{\"questions\": [{\"id\": \"q1\"}]}\n```\nGood luck!"
	raw, ok := Extract(input)
	assert.True(t, ok)
	assert.JSONEq(t, `{"questions": [{"id": "q1"}]}`, string(raw))
}

func TestExtractFencedBlockWithoutLanguageTag(t *testing.T) {
	input := "```\n{\"a\": 1}\n```"
	raw, ok := Extract(input)
	assert.True(t, ok)
	assert.JSONEq(t, `{"a": 1}`, string(raw))
}

func TestExtractBraceScan(t *testing.T) {
	input := `Sure! The result is {"score": 80, "note": "ok"} as requested.`
	raw, ok := Extract(input)
	assert.True(t, ok)
	assert.JSONEq(t, `{"score": 80, "note": "ok"}`, string(raw))
}

func TestExtractBraceScanSpansNestedObjects(t *testing.T) {
	input := `prefix {"outer": {"inner": [1, {"deep": true}]}} suffix`
	raw, ok := Extract(input)
	assert.True(t, ok)

	var decoded map[string]interface{}
	assert.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "outer")
}

func TestExtractRejectsProse(t *testing.T) {
	_, ok := Extract("I could not generate any questions, sorry.")
	assert.False(t, ok)
}

func TestExtractRejectsEmpty(t *testing.T) {
	_, ok := Extract("   \n\t  ")
	assert.False(t, ok)
}

func TestExtractRejectsTruncatedJSON(t *testing.T) {
	_, ok := Extract(`{"questions": [{"id": "q1"`)
	assert.False(t, ok)
}

func TestExtractFencedBlockBeatsBraceScan(t *testing.T) {
	// The fence holds the real payload; stray braces in prose must not win.
	input := "ignore {this} text\n```json\n{\"kept\": true}\n```"
	raw, ok := Extract(input)
	assert.True(t, ok)
	assert.JSONEq(t, `{"kept": true}`, string(raw))
}
