package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestNormalizeCommand(t *testing.T) {
	out, err := execute(t, "normalize", "082 123 4567", "+27821234567")
	require.NoError(t, err)
	assert.Contains(t, out, "082 123 4567\t+27821234567")
	assert.Contains(t, out, "+27821234567\t+27821234567")

	out, err = execute(t, "normalize", "0821234567", "12ab")
	assert.EqualError(t, err, "1 of 2 numbers are invalid")
	assert.Contains(t, out, "12ab\tINVALID")
}

func TestProvidersCommandWithoutCredentials(t *testing.T) {
	for _, k := range []string{
		"BULKSMS_USERNAME", "BULKSMS_PASSWORD", "CLICKATEL_API_KEY", "SMSPORTAL_API_KEY",
		"SMSPORTAL_CLIENT_ID", "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER",
		"AFRICASTALKING_API_KEY", "AFRICASTALKING_USERNAME", "WINSMS_API_KEY", "SMS_PROVIDERS",
	} {
		t.Setenv(k, "")
	}
	_, err := execute(t, "--config", t.TempDir()+"/missing.yaml", "providers")
	assert.Error(t, err)
}

func TestCreateAdminRequiresFlags(t *testing.T) {
	_, err := execute(t, "create-admin")
	assert.Error(t, err)
}
