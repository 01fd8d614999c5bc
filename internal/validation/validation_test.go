package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors(t *testing.T) {
	errs := Errors{}
	assert.NoError(t, errs.Err())

	errs.Check(false, "duration", "Duration must be greater than zero.")
	errs.Add("duration", "ignored")
	errs.Check(true, "type", "unused")
	require.Error(t, errs.Err())
	assert.Equal(t, "validation failed: duration: Duration must be greater than zero.", errs.Error())

	wrapped := fmt.Errorf("log activity: %w", errs.Err())
	fields, ok := Fields(wrapped)
	require.True(t, ok)
	assert.Equal(t, "Duration must be greater than zero.", fields["duration"])

	_, ok = Fields(fmt.Errorf("plain"))
	assert.False(t, ok)
}
