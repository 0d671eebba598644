package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personSchema = `{
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "age": {"type": "integer", "minimum": 0}
  }
}`

func TestCompileAndValidate(t *testing.T) {
	s, err := Compile("person", []byte(personSchema))
	require.NoError(t, err)

	assert.NoError(t, s.ValidateJSON([]byte(`{"name":"ada","age":36}`)))
	assert.Error(t, s.ValidateJSON([]byte(`{"age":36}`)))
	assert.Error(t, s.ValidateJSON([]byte(`{"name":"ada","age":-1}`)))
	assert.Error(t, s.ValidateJSON([]byte(`not json`)))
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile("broken", []byte(`{"type":`))
	assert.Error(t, err)

	assert.Panics(t, func() { MustCompile("broken", []byte(`{"type": 12}`)) })
}
