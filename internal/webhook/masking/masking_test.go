package masking

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "pi_3Nx_secret_****wxyz", MaskSecret("pi_3Nx_secret_abcdwxyz"))
	assert.Equal(t, "****", MaskSecret("abc"))
}

func TestMaskFields(t *testing.T) {
	raw := json.RawMessage(`{"object":{"id":"pi_1","client_secret":"pi_1_secret_0123456789","charges":[{"client_secret":"ch_secret_zzzz9999"}]}}`)

	masked := MaskFields(raw, SensitiveKeys...)

	var doc struct {
		Object struct {
			ID           string `json:"id"`
			ClientSecret string `json:"client_secret"`
			Charges      []struct {
				ClientSecret string `json:"client_secret"`
			} `json:"charges"`
		} `json:"object"`
	}
	require.NoError(t, json.Unmarshal(masked, &doc))
	assert.Equal(t, "pi_1", doc.Object.ID)
	assert.Equal(t, "pi_1_secret_****6789", doc.Object.ClientSecret)
	require.Len(t, doc.Object.Charges, 1)
	assert.Equal(t, "ch_secret_****9999", doc.Object.Charges[0].ClientSecret)
}

func TestMaskFieldsLeavesCleanPayloads(t *testing.T) {
	raw := json.RawMessage(`{"object": {"id": "sub_1"}}`)
	assert.Equal(t, raw, MaskFields(raw, SensitiveKeys...))

	notJSON := json.RawMessage(`not json`)
	assert.Equal(t, notJSON, MaskFields(notJSON, SensitiveKeys...))
}
