package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("verbose"))
}

func TestWithRequestKeepsIncomingID(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, logrus.InfoLevel)

	r := httptest.NewRequest("GET", "/healthz", nil)
	r.Header.Set("X-Request-ID", "abc")
	l.WithRequest(r).Info("hit")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc", line["req_id"])
	assert.Equal(t, "/healthz", line["path"])

	fresh := l.WithRequest(httptest.NewRequest("GET", "/", nil))
	assert.NotEmpty(t, fresh.Data["req_id"])
}

func TestWithError(t *testing.T) {
	l := NewWithWriter(&bytes.Buffer{}, logrus.InfoLevel)

	assert.Same(t, l.Entry, l.WithError(nil))
	assert.Equal(t, "boom", l.WithError(errors.New("boom")).Data["error"])
}
