package rodbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIframeSources(t *testing.T) {
	assert.Equal(t, []string{"https://a.example/", "https://b.example/x"},
		iframeSources(`["https://a.example/", null, "", "https://b.example/x"]`))
	assert.Empty(t, iframeSources(`not json`))
	assert.Empty(t, iframeSources(`{}`))
}
