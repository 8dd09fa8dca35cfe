package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLoggerIsGlobal(t *testing.T) {
	t.Cleanup(Reset)

	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})
	SetLogger(l)

	require.Same(t, l, Logger())

	WithComponent("stage").Info("opened")
	assert.Contains(t, buf.String(), `"component":"stage"`)
	assert.Contains(t, buf.String(), `"msg":"opened"`)
}

func TestResetRestoresDefault(t *testing.T) {
	l := logrus.New()
	SetLogger(l)
	Reset()

	assert.NotSame(t, l, Logger())
	assert.Equal(t, logrus.InfoLevel, Logger().GetLevel())
}

func TestSetLoggerNil(t *testing.T) {
	t.Cleanup(Reset)

	SetLogger(nil)
	assert.NotNil(t, Logger())
}
