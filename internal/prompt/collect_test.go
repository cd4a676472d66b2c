package prompt

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rackops/imdcfg/internal/encryption"
	"github.com/rackops/imdcfg/internal/plan"
	"github.com/rackops/imdcfg/internal/validate"
)

const testIterations = 64

func flag(b bool) *plan.Flag {
	f := plan.Flag(b)
	return &f
}

func testHostnameFormat() validate.HostnameFormat {
	return validate.HostnameFormat{
		Regex:              `(.+)([a,b,A,B])(\d)$`,
		VariableGroupIndex: 1,
		Sequence:           []string{"a", "b"},
	}
}

func TestCollect(t *testing.T) {
	doc := &plan.Document{
		Prompts: []plan.Prompt{
			{
				ConfigItem:  "hostname",
				PromptText:  "Hostname",
				VerifySteps: validate.Steps{validate.IsHostname{}},
				FormatSteps: plan.FormatSteps{plan.Lower{}},
			},
			{
				ConfigItem:   "ntp_server",
				PromptText:   "NTP server",
				UniqueValue:  flag(false),
				DefaultValue: "pool.ntp.org",
			},
			{
				ConfigItem:   "rack",
				PromptText:   "Rack number",
				DefaultValue: "7",
				FormatSteps:  plan.FormatSteps{plan.Zfill{Width: 3}},
			},
			{
				ConfigItem:   "site",
				InputMode:    plan.InputNone,
				DefaultValue: "LAB",
			},
		},
	}

	// "bad_name!" fails is_hostname and is asked again.
	p, out := newTestPrompter("bad_name!\nRACK-A1\n\n")
	c := &Collector{Prompter: p, Iterations: testIterations}

	values, err := c.Collect(doc)
	require.NoError(t, err)
	assert.Equal(t, []plan.ResolvedValue{
		{ConfigItem: "hostname", Value: "rack-a1"},
		{ConfigItem: "ntp_server", Value: "pool.ntp.org"},
		{ConfigItem: "rack", Value: "007"},
		{ConfigItem: "site", Value: "LAB"},
	}, values)
	assert.Contains(t, out.String(), "Invalid value")
	assert.NotContains(t, out.String(), "NTP server")
}

func TestCollectGuessesNextHostname(t *testing.T) {
	doc := &plan.Document{
		Prompts: []plan.Prompt{
			{ConfigItem: "hostname", PromptText: "Hostname", GuessNextHostname: true},
		},
	}

	p, out := newTestPrompter("\n")
	c := &Collector{
		Prompter:       p,
		HostnameFormat: testHostnameFormat(),
		Previous:       map[string]string{"hostname": "rack-12-a1"},
	}

	values, err := c.Collect(doc)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "rack-12-b1", values[0].Value)
	assert.Contains(t, out.String(), "[rack-12-b1]")
}

func TestCollectEncryptedDefault(t *testing.T) {
	salt, cipherText, err := encryption.Encrypt("right", "community-string", nil, testIterations)
	require.NoError(t, err)

	doc := &plan.Document{
		Prompts: []plan.Prompt{
			{
				ConfigItem:     "snmp_community",
				PromptText:     "SNMP community",
				UniqueValue:    flag(false),
				DefaultValue:   cipherText,
				EncryptDefault: true,
				Salt:           salt,
			},
		},
	}

	var retries []bool
	answers := []string{"wrong", "right"}
	p, out := newTestPrompter("y\n")
	c := &Collector{
		Prompter:   p,
		Iterations: testIterations,
		Passphrase: func(retry bool) (string, error) {
			retries = append(retries, retry)
			a := answers[0]
			answers = answers[1:]
			return a, nil
		},
	}

	values, err := c.Collect(doc)
	require.NoError(t, err)
	assert.Equal(t, []plan.ResolvedValue{{ConfigItem: "snmp_community", Value: "community-string"}}, values)
	assert.Equal(t, []bool{false, true}, retries)
	assert.Contains(t, out.String(), "Unable to decrypt")
}

func TestCollectEncryptedDefaultAbandoned(t *testing.T) {
	salt, cipherText, err := encryption.Encrypt("right", "x", nil, testIterations)
	require.NoError(t, err)

	doc := &plan.Document{
		Prompts: []plan.Prompt{
			{ConfigItem: "secret", UniqueValue: flag(false), DefaultValue: cipherText, EncryptDefault: true, Salt: salt},
		},
	}

	p, _ := newTestPrompter("n\n")
	c := &Collector{
		Prompter:   p,
		Iterations: testIterations,
		Passphrase: func(bool) (string, error) { return "wrong", nil },
	}

	_, err = c.Collect(doc)
	assert.ErrorIs(t, err, ErrAbandoned)
}

func TestCollectPassphraseError(t *testing.T) {
	doc := &plan.Document{
		Prompts: []plan.Prompt{
			{ConfigItem: "secret", UniqueValue: flag(false), DefaultValue: "00", EncryptDefault: true, Salt: "00"},
		},
	}
	boom := errors.New("interrupted")
	p, _ := newTestPrompter("")
	c := &Collector{Prompter: p, Passphrase: func(bool) (string, error) { return "", boom }}

	_, err := c.Collect(doc)
	assert.ErrorIs(t, err, boom)
}

func TestCollectSecretInputKeepsDefault(t *testing.T) {
	doc := &plan.Document{
		Prompts: []plan.Prompt{
			{ConfigItem: "snmp_auth", PromptText: "SNMP auth key", InputMode: plan.InputSecret, DefaultValue: "keep-me"},
		},
	}
	p, _ := newTestPrompter("\n")
	c := &Collector{Prompter: p}

	values, err := c.Collect(doc)
	require.NoError(t, err)
	assert.Equal(t, "keep-me", values[0].Value)
}

func TestCaptureDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")
	original := `{
    "version": "1",
    "prompts": [
        {"config_item": "hostname", "prompt_text": "Hostname"},
        {"config_item": "ntp_server", "prompt_text": "NTP server", "unique_value": false},
        {"config_item": "snmp_community", "prompt_text": "Community", "unique_value": false, "encrypt_default": true}
    ],
    "api_call_sequence": ["hostname"]
}`
	require.NoError(t, os.WriteFile(path, []byte(original), 0600))

	doc := &plan.Document{
		Prompts: []plan.Prompt{
			{ConfigItem: "hostname", PromptText: "Hostname"},
			{ConfigItem: "ntp_server", PromptText: "NTP server", UniqueValue: flag(false)},
			{ConfigItem: "snmp_community", PromptText: "Community", UniqueValue: flag(false), EncryptDefault: true},
		},
	}

	p, _ := newTestPrompter("pool.ntp.org\npublic\n")
	c := &Collector{
		Prompter:   p,
		Iterations: testIterations,
		Passphrase: func(bool) (string, error) { return "pass", nil },
	}

	n, err := c.CaptureDefaults(path, doc)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, doc.ContainsUnspecifiedDefaults())
	assert.True(t, doc.ContainsEncryptedDefaults())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw struct {
		Version string           `json:"version"`
		Prompts []map[string]any `json:"prompts"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "1", raw.Version)
	require.Len(t, raw.Prompts, 3)
	assert.NotContains(t, raw.Prompts[0], "default_value")
	assert.Equal(t, "pool.ntp.org", raw.Prompts[1]["default_value"])

	salt, _ := raw.Prompts[2]["salt"].(string)
	cipherText, _ := raw.Prompts[2]["default_value"].(string)
	require.NotEmpty(t, salt)
	assert.NotEqual(t, "public", cipherText)
	plain, err := encryption.Decrypt(salt, cipherText, "pass", testIterations)
	require.NoError(t, err)
	assert.Equal(t, "public", plain)
}

func TestCaptureDefaultsNothingToDo(t *testing.T) {
	doc := &plan.Document{
		Prompts: []plan.Prompt{{ConfigItem: "hostname", PromptText: "Hostname"}},
	}
	p, _ := newTestPrompter("")
	c := &Collector{Prompter: p}

	n, err := c.CaptureDefaults(filepath.Join(t.TempDir(), "missing.json"), doc)
	require.NoError(t, err)
	assert.Zero(t, n)
}
