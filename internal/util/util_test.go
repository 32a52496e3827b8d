package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	out, err = RenderTemplate(`{{title .topic}} for {{default "everyone" .grade}}: {{join ", " .items}}`, map[string]any{
		"topic": "fractions",
		"items": []string{"quiz", "worksheet"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Fractions for everyone: quiz, worksheet", out)

	_, err = RenderTemplate("{{ .broken", nil)
	assert.Error(t, err)
}

type sample struct {
	Intent   string         `json:"intent" description:"classified intent"`
	Score    float64        `json:"confidence"`
	Entities map[string]any `json:"entities,omitempty"`
	Hidden   string         `json:"-"`
}

func TestSchemaFor(t *testing.T) {
	s := SchemaFor(sample{})
	props := s["properties"].(map[string]any)
	assert.Len(t, props, 3)
	assert.Equal(t, "classified intent", props["intent"].(map[string]any)["description"])
	assert.Equal(t, []string{"intent", "confidence"}, s["required"])
}

func TestValidate(t *testing.T) {
	s := SchemaFor(&sample{})
	require.NoError(t, Validate(map[string]any{"intent": "greeting", "confidence": 0.9, "extra": 1}, s))

	err := Validate(map[string]any{"intent": "greeting"}, s)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "confidence", verr.Field)

	err = Validate(map[string]any{"intent": 3.0, "confidence": 0.9}, s)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "intent", verr.Field)
}
