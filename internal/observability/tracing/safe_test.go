package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSafeAttributesDropsCredentials(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/accounts"),
		attribute.String("holded.key", "abc"),
		attribute.String("client_secret", "s"),
		attribute.String("contact_nif", "12345678Z"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, "http.route", string(attrs[0].Key))
}

func TestSafeErrorMasksSecrets(t *testing.T) {
	err := SafeError(errors.New("POST /token failed: password=hunter2&client_id=x"))
	assert.Equal(t, "POST /token failed: password=***&client_id=x", err.Error())
	assert.Nil(t, SafeError(nil))
}

func TestConfigSamplerClampsRatio(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), Config{SamplingRatio: 1}.sampler().Description())
	assert.Contains(t, Config{Enabled: true, SamplingRatio: 4}.sampler().Description(), "root:AlwaysOnSampler")
	assert.Contains(t, Config{Enabled: true, SamplingRatio: -1}.sampler().Description(), "TraceIDRatioBased{0}")
}
