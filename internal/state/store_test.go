package state

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rackops/imdcfg/internal/encryption"
	"github.com/rackops/imdcfg/internal/plan"
)

const testIterations = 64

func sampleItems() []plan.OrderedConfigItem {
	return []plan.OrderedConfigItem{
		NewCredentialsItem("admin", "s3cret!"),
		{
			ConfigItem:     "label",
			ConfigItemName: "Hostname Label",
			DisplayToUser:  true,
			ValueToDisplay: "rack07",
			APICalls: []plan.APICall{{
				Cmd:     plan.CmdSet,
				Method:  "post",
				APIPath: "system",
				Data:    plan.TextPayload("{'label': 'rack07', 'hostname': 'rack07'}"),
			}},
		},
		{
			ConfigItem:     "ipv6",
			ConfigItemName: "IPv6",
			APICalls: []plan.APICall{{
				Cmd:     plan.CmdSet,
				Method:  "post",
				APIPath: "system",
				Data:    plan.ObjectPayload(map[string]any{"ip6Enabled": "false"}),
			}},
		},
		{
			ConfigItem:     "old_user",
			ConfigItemName: "Remove old user",
			APICalls:       []plan.APICall{{Cmd: plan.CmdDelete, Method: "post", APIPath: "auth/olduser"}},
		},
	}
}

func newTestStore(t *testing.T, encrypt bool) *Store {
	t.Helper()
	return &Store{Dir: t.TempDir(), Filename: DefaultFilename, Encrypt: encrypt, Iterations: testIterations}
}

func TestStorePlainRoundTrip(t *testing.T) {
	s := newTestStore(t, false)
	items := sampleItems()

	require.False(t, s.Exists())
	require.NoError(t, s.Save(items, ""))
	require.True(t, s.Exists())

	got, err := s.Load("")
	require.NoError(t, err)
	assert.Equal(t, items, got)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = os.Stat(s.Path() + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist), "temporary file should not remain")
}

func TestStoreEncryptedRoundTrip(t *testing.T) {
	s := newTestStore(t, true)
	items := sampleItems()

	require.NoError(t, s.Save(items, "correct horse"))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "salt: "))
	assert.NotContains(t, string(raw), "s3cret!")

	encrypted, err := s.IsEncrypted()
	require.NoError(t, err)
	assert.True(t, encrypted)

	got, err := s.Load("correct horse")
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestStoreEncryptedErrors(t *testing.T) {
	s := newTestStore(t, true)
	require.NoError(t, s.Save(sampleItems(), "correct horse"))
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	_, err = s.Load("")
	assert.ErrorIs(t, err, ErrPassphraseRequired)

	_, err = s.Load("wrong")
	assert.ErrorIs(t, err, encryption.ErrDecryption)

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed decrypt must leave the file untouched")

	got, err := s.Load("correct horse")
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestStoreEncryptWithoutPassphraseWritesPlain(t *testing.T) {
	s := newTestStore(t, true)
	require.NoError(t, s.Save(sampleItems(), ""))

	encrypted, err := s.IsEncrypted()
	require.NoError(t, err)
	assert.False(t, encrypted)

	_, err = s.Load("")
	assert.NoError(t, err)
}

func TestStoreMissing(t *testing.T) {
	s := newTestStore(t, false)

	_, err := s.Load("")
	assert.ErrorIs(t, err, ErrNoState)

	_, err = s.ModTime()
	assert.ErrorIs(t, err, ErrNoState)

	assert.NoError(t, s.Clear())
}

func TestStoreModTimeAndClear(t *testing.T) {
	s := newTestStore(t, false)
	require.NoError(t, s.Save(sampleItems(), ""))

	stamp := time.Date(2024, 4, 30, 13, 5, 9, 0, time.Local)
	require.NoError(t, os.Chtimes(s.Path(), stamp, stamp))

	got, err := s.ModTime()
	require.NoError(t, err)
	assert.Equal(t, "2024-04-30 13:05:09", got)

	require.NoError(t, s.Clear())
	assert.False(t, s.Exists())
}

func TestStoreLoadCorrupt(t *testing.T) {
	s := newTestStore(t, false)
	require.NoError(t, os.WriteFile(s.Path(), []byte("[{not json"), 0600))

	_, err := s.Load("")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoState)
}

func TestStoreLoadLegacyFile(t *testing.T) {
	s := newTestStore(t, false)
	legacy := `[
    {"config_item": "credentials", "config_item_name": "IMD Credentials",
     "api_calls": [{"cmd": "add", "method": "post", "api_path": "auth",
                    "data": "{'username': 'test_username', 'password': 'test_password', 'enabled': True}"}]},
    {"config_item": "label", "config_item_name": "Hostname Label", "display_to_user": 1,
     "value_to_display": "rack07",
     "api_calls": [{"cmd": "set", "method": "post", "api_path": "system", "data": "{'label': 'rack07'}"}]}
]`
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, DefaultFilename), []byte(legacy), 0600))

	items, err := s.Load("")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, plan.Flag(true), items[1].DisplayToUser)

	user, pass, ok := Credentials(items)
	assert.True(t, ok)
	assert.Equal(t, "test_username", user)
	assert.Equal(t, "test_password", pass)
}
