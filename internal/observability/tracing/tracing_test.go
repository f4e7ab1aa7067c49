package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPII(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/stripe/checkout"),
		attribute.String("customer_email", "donor@example.com"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorTruncates(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	err := SafeError(errors.New(strings.Repeat("x", 500)))
	assert.Len(t, err.Error(), 256)
}
