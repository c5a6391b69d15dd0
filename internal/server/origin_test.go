package server

import (
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginPolicy(t *testing.T) {
	log, _ := logtest.NewNullLogger()

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"exact match", []string{"http://localhost:8080"}, "http://localhost:8080", true},
		{"case insensitive", []string{"http://LocalHost:8080"}, "HTTP://localhost:8080", true},
		{"path ignored in config", []string{"https://chat.example.com/app"}, "https://chat.example.com", true},
		{"different port", []string{"http://localhost:8080"}, "http://localhost:9090", false},
		{"different scheme", []string{"http://localhost:8080"}, "https://localhost:8080", false},
		{"missing origin", []string{"http://localhost:8080"}, "", false},
		{"malformed origin", []string{"http://localhost:8080"}, "not-a-url", false},
		{"empty allow-list", nil, "http://localhost:8080", false},
		{"wildcard", []string{"*"}, "https://anywhere.example", true},
		{"wildcard without origin", []string{" * "}, "", true},
		{"invalid entries skipped", []string{"://bad", "", "http://ok.example"}, "http://ok.example", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newOriginPolicy(tt.allowed, log)
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, p.allows(req))
		})
	}
}

func TestOriginPolicyLogsBlockedOrigins(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	p := newOriginPolicy([]string{"http://localhost:8080", "bogus"}, log)

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "Ignoring invalid origin in configuration", hook.LastEntry().Message)
	hook.Reset()

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, p.check(req))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "http://evil.example", entry.Data["origin"])
}
