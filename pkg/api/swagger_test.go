package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestStringifyYAMLKeysProducesJSONEncodable(t *testing.T) {
	doc := `
openapi: 3.0.3
info:
  title: Test API
paths:
  /markets/{marketId}:
    get:
      responses:
        "200":
          description: ok
tags:
  - name: markets
`
	var spec interface{}
	require.NoError(t, yaml.Unmarshal([]byte(doc), &spec))

	// yaml.v2 yields interface{}-keyed maps that encoding/json rejects.
	_, err := json.Marshal(spec)
	require.Error(t, err)

	out, err := json.Marshal(stringifyYAMLKeys(spec))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "3.0.3", decoded["openapi"])

	paths, ok := decoded["paths"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, paths, "/markets/{marketId}")
}
