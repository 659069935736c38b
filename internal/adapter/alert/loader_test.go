package alert

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAlert = `{
	"alert_id": "ALT-2024-001",
	"timestamp": "2024-06-01T10:32:00Z",
	"attacker_ip": "203.0.113.7",
	"victim_ip": "10.0.4.22",
	"attack_type": "sql_injection",
	"payload": "' OR 1=1 --",
	"protocol": "HTTP",
	"destination_port": 443,
	"description": "SQLi attempt against login endpoint",
	"additional_context": {"waf_blocked": false}
}`

func writeAlert(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alert.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullAlert(t *testing.T) {
	a, err := Load(writeAlert(t, sampleAlert))
	require.NoError(t, err)

	assert.Equal(t, "ALT-2024-001", a.AlertID)
	assert.Equal(t, "203.0.113.7", a.AttackerIP)
	assert.Equal(t, "10.0.4.22", a.VictimIP)
	assert.Equal(t, "sql_injection", a.AttackType)
	assert.Equal(t, 443, a.DestinationPort)
	assert.JSONEq(t, `{"waf_blocked": false}`, string(a.AdditionalCtx))
}

func TestLoad_MissingRequiredField(t *testing.T) {
	for _, missing := range []string{"attacker_ip", "victim_ip", "attack_type"} {
		content := sampleAlert
		content = strings.Replace(content, `"`+missing+`"`, `"renamed_`+missing+`"`, 1)

		_, err := Load(writeAlert(t, content))
		require.Error(t, err, "expected error when %s missing", missing)
		assert.Contains(t, err.Error(), missing)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoad_InvalidJSON(t *testing.T) {
	_, err := Load(writeAlert(t, "{broken"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse alert")
}

func TestFormatInfo(t *testing.T) {
	a, err := Load(writeAlert(t, sampleAlert))
	require.NoError(t, err)

	info := FormatInfo(a)
	assert.Contains(t, info, "Security Alert Details")
	assert.Contains(t, info, "Attacker IP: 203.0.113.7")
	assert.Contains(t, info, "Destination Port: 443")
	assert.Contains(t, info, "Description: SQLi attempt against login endpoint")
}

func TestFormatInfo_OptionalFieldsNA(t *testing.T) {
	a, err := Load(writeAlert(t, `{"attacker_ip": "1.2.3.4", "victim_ip": "5.6.7.8", "attack_type": "scan"}`))
	require.NoError(t, err)

	info := FormatInfo(a)
	assert.Contains(t, info, "Alert ID: N/A")
	assert.Contains(t, info, "Destination Port: N/A")
	assert.NotContains(t, info, "Description:")
}

func TestUserMessage(t *testing.T) {
	a, err := Load(writeAlert(t, sampleAlert))
	require.NoError(t, err)

	msg := UserMessage(a)
	assert.Contains(t, msg, "Analyze the following security alert")
	assert.Contains(t, msg, "- Attack Type: sql_injection")
	assert.Contains(t, msg, "**Additional Context**")
	assert.Contains(t, msg, "waf_blocked")
}
