package gcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientOptionsFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	assert.Empty(t, ClientOptionsFromEnv(""))
	assert.Len(t, ClientOptionsFromEnv("town-project"), 1)

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/tmp/sa.json")
	assert.Len(t, ClientOptionsFromEnv(""), 1)
	assert.Len(t, ClientOptionsFromEnv(" town-project "), 2)

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", `{"type":"service_account"}`)
	assert.Len(t, ClientOptionsFromEnv(""), 1)
}

func TestEmulatorHost(t *testing.T) {
	t.Setenv("STORAGE_EMULATOR_HOST", " http://localhost:4443/ ")
	assert.Equal(t, "http://localhost:4443", EmulatorHost())
}
