package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactConnectionString_MasksPassword(t *testing.T) {
	cs := "Server=sql01;Database=migrations;User Id=svc;Password=hunter2;"
	got := RedactConnectionString(cs)
	assert.Contains(t, got, "Password=***")
	assert.NotContains(t, got, "hunter2")
}

func TestRedactConnectionString_MasksPwdVariant(t *testing.T) {
	cs := "Server=sql01;pwd=s3cret;"
	got := RedactConnectionString(cs)
	assert.Contains(t, got, "pwd=***")
	assert.NotContains(t, got, "s3cret")
}

func TestRedactConnectionString_NoPasswordIsUnchanged(t *testing.T) {
	cs := "Server=sql01;Database=migrations;"
	assert.Equal(t, cs, RedactConnectionString(cs))
}
