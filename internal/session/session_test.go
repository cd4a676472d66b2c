package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rackops/imdcfg/internal/config"
	"github.com/rackops/imdcfg/internal/deviceconfig"
	"github.com/rackops/imdcfg/internal/firmware"
	"github.com/rackops/imdcfg/internal/network"
	"github.com/rackops/imdcfg/internal/plan"
	"github.com/rackops/imdcfg/internal/prompt"
	"github.com/rackops/imdcfg/internal/state"
	"github.com/rackops/imdcfg/internal/validate"
)

const testPrompts = `{
	"greeting": {"text": "Welcome to the IMD configuration wizard", "display": 1},
	"prompts": [
		{"config_item": "imd_hostname", "prompt_text": "Hostname", "verify_functions": [["is_hostname"]], "guess_next_hostname": 1},
		{"config_item": "snmp_community", "prompt_text": "SNMP community", "input_mode": "getpass", "unique_value": 0, "default_value": "public"},
		{"config_item": "primary_ntp", "prompt_text": "Primary NTP", "unique_value": 0, "default_value": "pool.0.ntp.org"}
	],
	"formatters": [
		{
			"config_item": "label",
			"config_item_name": "Hostname Label",
			"format_functions": [["apply_string_template", "{{'label': '{imd_hostname}'}}"]],
			"display_to_user": 1,
			"value_to_display": "{imd_hostname}",
			"api_calls": [{"cmd": "set", "method": "post", "api_path": "system"}]
		},
		{
			"config_item": "ntp",
			"config_item_name": "NTP Server",
			"format_functions": [["apply_string_template", "{{'ntpServer1': '{primary_ntp}'}}"]],
			"api_calls": [{"cmd": "set", "method": "post", "api_path": "conf/time"}]
		}
	],
	"defaults": [
		{
			"config_item": "ipv6",
			"config_item_name": "IPv6",
			"api_calls": [{"cmd": "set", "method": "post", "api_path": "conf/network", "data": {"ip6Enabled": "false"}}]
		}
	],
	"api_call_sequence": ["label", "ipv6", "ntp"]
}`

type seenRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

// mockIMD answers like an IMD: sys/version returns version, paths in fail
// answer with a non-zero retCode, everything else succeeds.
type mockIMD struct {
	mu      sync.Mutex
	version string
	fail    map[string]string
	seen    []seenRequest
}

func (m *mockIMD) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := seenRequest{Method: r.Method, Path: r.URL.Path}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &rec.Body)
	} else {
		_, _ = io.Copy(io.Discard, r.Body)
	}

	m.mu.Lock()
	m.seen = append(m.seen, rec)
	version, msg, failed := m.version, m.fail[r.URL.Path], m.fail[r.URL.Path] != ""
	m.mu.Unlock()

	switch {
	case failed:
		_, _ = io.WriteString(w, `{"retCode":1,"retMsg":"`+msg+`"}`)
	case r.URL.Path == "/api/sys/version":
		_, _ = io.WriteString(w, `{"retCode":0,"retMsg":"OK","data":"`+version+`"}`)
	default:
		_, _ = io.WriteString(w, `{"retCode":0,"retMsg":"Operation completed successfully"}`)
	}
}

func (m *mockIMD) requests() []seenRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]seenRequest(nil), m.seen...)
}

// posts returns the paths of the POST requests, in order.
func (m *mockIMD) posts() []string {
	var paths []string
	for _, r := range m.requests() {
		if r.Method == http.MethodPost {
			paths = append(paths, r.Path)
		}
	}
	return paths
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	dir := t.TempDir()
	s := &config.Settings{
		IP:                   "127.0.0.1",
		ConfigDir:            dir,
		PromptsFile:          filepath.Join(dir, config.DefaultPromptsFile),
		StateFile:            filepath.Join(dir, state.DefaultFilename),
		FirmwareDir:          filepath.Join(dir, "firmware"),
		TransientRetCodes:    []int{5, 6},
		Timeout:              5 * time.Second,
		EncryptionIterations: 64,
		UseLockFile:          true,
		Spinner:              "line",
		FirmwareFileURL:      config.DefaultFirmwareURL,
		FirmwareUploadPath:   config.DefaultUploadPath,
		DownloadTimeout:      5 * time.Second,
		CheckFirmware:        true,
		RebootWait:           2 * time.Second,
		HostnameFormat: validate.HostnameFormat{
			Regex:              `(.+)([a,b,A,B])(\d)$`,
			VariableGroupIndex: 1,
			Sequence:           []string{"a", "b"},
		},
		FactoryReset: config.CallSettings{
			Cmd:     "set",
			Method:  "post",
			APIPath: "sys",
			Data:    map[string]any{"action": "reset"},
		},
	}
	require.NoError(t, os.WriteFile(s.PromptsFile, []byte(testPrompts), 0600))
	return s
}

func newTestSession(t *testing.T, settings *config.Settings, imd *mockIMD, input string) (*Session, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewTLSServer(imd)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	s := New(settings, strings.NewReader(input), &out, false)
	s.Device = deviceconfig.NewClientWithURL(srv.URL + "/api/")
	s.Pinger.Run = func(context.Context, string, ...string) error { return nil }
	s.PollInterval = time.Millisecond
	return s, &out
}

func TestConfigureFresh(t *testing.T) {
	settings := testSettings(t)
	imd := &mockIMD{version: "6.1.2"}
	// username, password twice, hostname, apply, configure another
	s, out := newTestSession(t, settings, imd, "admin\npw1\npw1\nrack07-pdu-a1\ny\nn\n")

	require.NoError(t, s.Configure(context.Background()))

	assert.Equal(t, []string{"/api/auth", "/api/system", "/api/conf/network", "/api/conf/time"}, imd.posts())
	reqs := imd.requests()
	assert.Equal(t, "/api/sys/version", reqs[0].Path, "firmware is checked before applying")

	var label seenRequest
	for _, r := range reqs {
		if r.Path == "/api/system" {
			label = r
		}
	}
	assert.Equal(t, "admin", label.Body["username"])
	assert.Equal(t, "pw1", label.Body["password"])
	assert.Equal(t, map[string]any{"label": "rack07-pdu-a1"}, label.Body["data"])

	assert.False(t, s.Store.Exists(), "state is cleared after a complete run")
	_, err := os.Stat(s.Store.LockPath())
	assert.True(t, os.IsNotExist(err), "lock is released")

	text := out.String()
	assert.Contains(t, text, "Welcome to the IMD configuration wizard")
	assert.Contains(t, text, "rack07-pdu-a1")
	assert.Contains(t, text, "IMD configured")

	h, err := config.LoadHistory(config.HistoryPath(settings.ConfigDir))
	require.NoError(t, err)
	rec := h.Last()
	require.NotNil(t, rec)
	assert.Equal(t, "rack07-pdu-a1", rec.Hostname)
	assert.Equal(t, "6.1.2", rec.Firmware)
	assert.True(t, rec.Complete)
	assert.Equal(t, "pool.0.ntp.org", rec.Values["primary_ntp"])
	assert.NotContains(t, rec.Values, "snmp_community", "secret values stay out of the history")
}

func TestConfigureAnotherGuessesHostname(t *testing.T) {
	settings := testSettings(t)
	settings.CheckFirmware = false
	imd := &mockIMD{}
	// second IMD accepts the guessed hostname with an empty answer
	input := "admin\npw1\npw1\nrack07-pdu-a1\ny\ny\n\ny\nn\n"
	s, out := newTestSession(t, settings, imd, input)

	require.NoError(t, s.Configure(context.Background()))

	assert.Contains(t, out.String(), "[rack07-pdu-b1]")
	h, err := config.LoadHistory(config.HistoryPath(settings.ConfigDir))
	require.NoError(t, err)
	require.Len(t, h.Devices, 2)
	assert.Equal(t, "rack07-pdu-b1", h.Devices[1].Hostname)

	// credentials are asked once and reused
	assert.Equal(t, 1, strings.Count(out.String(), "Please type the username to set"))
}

func TestConfigureGuessesFromHistory(t *testing.T) {
	settings := testSettings(t)
	settings.CheckFirmware = false
	require.NoError(t, config.AppendHistory(config.HistoryPath(settings.ConfigDir), config.DeviceRecord{
		Hostname: "rack07-pdu-a1",
		IP:       "192.168.123.123",
		Complete: true,
		Values:   map[string]string{"imd_hostname": "rack07-pdu-a1"},
	}))
	imd := &mockIMD{}
	// empty hostname answer takes the guess
	s, out := newTestSession(t, settings, imd, "admin\npw1\npw1\n\ny\nn\n")

	require.NoError(t, s.Configure(context.Background()))

	assert.Contains(t, out.String(), "[rack07-pdu-b1]")
	assert.NotContains(t, out.String(), "was already configured")
	h, err := config.LoadHistory(config.HistoryPath(settings.ConfigDir))
	require.NoError(t, err)
	assert.Equal(t, "rack07-pdu-b1", h.Last().Hostname)
}

func TestConfigureWarnsOnReusedHostname(t *testing.T) {
	settings := testSettings(t)
	settings.CheckFirmware = false
	require.NoError(t, config.AppendHistory(config.HistoryPath(settings.ConfigDir), config.DeviceRecord{
		Hostname: "rack07-pdu-a1",
		IP:       "10.0.0.9",
		Complete: true,
	}))
	imd := &mockIMD{}
	s, out := newTestSession(t, settings, imd, "admin\npw1\npw1\nrack07-pdu-a1\ny\nn\n")

	require.NoError(t, s.Configure(context.Background()))

	assert.Contains(t, out.String(), "rack07-pdu-a1 was already configured on 10.0.0.9")
}

func TestConfigureDeclinedPlan(t *testing.T) {
	settings := testSettings(t)
	imd := &mockIMD{version: "6.1.2"}
	// decline the plan, delete the saved state, stop
	s, _ := newTestSession(t, settings, imd, "admin\npw1\npw1\nrack07-pdu-a1\nn\ny\nn\n")

	require.NoError(t, s.Configure(context.Background()))
	assert.Empty(t, imd.requests())
	assert.False(t, s.Store.Exists())
}

func TestConfigurePartialKeepsState(t *testing.T) {
	settings := testSettings(t)
	settings.CheckFirmware = false
	imd := &mockIMD{fail: map[string]string{"/api/conf/time": "Invalid NTP server"}}
	// apply, do not retry, continue anyway, keep state, stop
	s, out := newTestSession(t, settings, imd, "admin\npw1\npw1\nrack07-pdu-a1\ny\nn\ny\nn\nn\n")

	require.NoError(t, s.Configure(context.Background()))

	assert.Contains(t, out.String(), "Invalid NTP server")
	assert.True(t, s.Store.Exists(), "state survives a partial run")

	h, err := config.LoadHistory(config.HistoryPath(settings.ConfigDir))
	require.NoError(t, err)
	require.NotNil(t, h.Last())
	assert.False(t, h.Last().Complete)
}

func TestConfigureAbort(t *testing.T) {
	settings := testSettings(t)
	settings.CheckFirmware = false
	imd := &mockIMD{fail: map[string]string{"/api/system": "Permission denied"}}
	// apply, do not retry, do not continue
	s, _ := newTestSession(t, settings, imd, "admin\npw1\npw1\nrack07-pdu-a1\ny\nn\nn\n")

	err := s.Configure(context.Background())
	assert.ErrorIs(t, err, deviceconfig.ErrAbortRun)
	assert.True(t, s.Store.Exists())
	assert.Equal(t, []string{"/api/auth", "/api/system"}, imd.posts())
}

func saveEncryptedState(t *testing.T, s *Session, passphrase string) {
	t.Helper()
	items := []plan.OrderedConfigItem{
		state.NewCredentialsItem("stored-admin", "stored-pw"),
		{
			ConfigItem:     "label",
			ConfigItemName: "Hostname Label",
			DisplayToUser:  true,
			ValueToDisplay: "rack09-pdu-a1",
			APICalls: []plan.APICall{{
				Cmd:     plan.CmdSet,
				Method:  "post",
				APIPath: "system",
				Data:    plan.TextPayload("{'label': 'rack09-pdu-a1'}"),
			}},
		},
	}
	require.NoError(t, s.Store.Save(items, passphrase))
}

func TestConfigureResumeEncrypted(t *testing.T) {
	settings := testSettings(t)
	settings.CheckFirmware = false
	settings.EncryptTempFile = true
	imd := &mockIMD{}
	// resume, wrong passphrase, try again, right passphrase, apply, stop
	s, out := newTestSession(t, settings, imd, "y\nwrong\ny\nsecret\ny\nn\n")
	saveEncryptedState(t, s, "secret")

	require.NoError(t, s.Configure(context.Background()))

	assert.Contains(t, out.String(), "Found a saved configuration")
	assert.Contains(t, out.String(), "Unable to decrypt")
	assert.Equal(t, []string{"/api/auth", "/api/system"}, imd.posts())

	reqs := imd.requests()
	last := reqs[len(reqs)-1]
	assert.Equal(t, "stored-admin", last.Body["username"], "credentials come from the saved state")
	assert.Equal(t, map[string]any{"label": "rack09-pdu-a1"}, last.Body["data"])
	assert.False(t, s.Store.Exists())
}

func TestConfigureResumeAbandoned(t *testing.T) {
	settings := testSettings(t)
	settings.EncryptTempFile = true
	imd := &mockIMD{}
	s, _ := newTestSession(t, settings, imd, "y\nwrong\nn\n")
	saveEncryptedState(t, s, "secret")

	err := s.Configure(context.Background())
	assert.ErrorIs(t, err, prompt.ErrAbandoned)
	assert.True(t, s.Store.Exists(), "an abandoned resume leaves the state alone")
	assert.Empty(t, imd.requests())
}

func TestConfigureResumeCorruptedState(t *testing.T) {
	settings := testSettings(t)
	imd := &mockIMD{}
	// resume, any passphrase, do not try again
	s, out := newTestSession(t, settings, imd, "y\nsecret\nn\n")
	require.NoError(t, os.WriteFile(s.Store.Path(), []byte("salt: 00ff\nnot-hex-at-all\n"), 0600))

	err := s.Configure(context.Background())
	assert.ErrorIs(t, err, prompt.ErrAbandoned)
	assert.Contains(t, out.String(), "Unable to decrypt")
	assert.True(t, s.Store.Exists())
	assert.Empty(t, imd.requests())
}

func TestConfigureDeleteSavedState(t *testing.T) {
	settings := testSettings(t)
	imd := &mockIMD{version: "6.1.2"}
	// do not resume, then a fresh run that is declined and its state deleted
	s, out := newTestSession(t, settings, imd, "n\nadmin\npw1\npw1\nrack07-pdu-a1\nn\ny\nn\n")
	saveEncryptedState(t, s, "")

	require.NoError(t, s.Configure(context.Background()))
	assert.Contains(t, out.String(), "Saved configuration deleted.")
	assert.False(t, s.Store.Exists())
}

func TestConfigureLocked(t *testing.T) {
	settings := testSettings(t)
	s, _ := newTestSession(t, settings, &mockIMD{}, "")

	lock, err := s.Store.Lock()
	require.NoError(t, err)
	defer func() { _ = lock.Release() }()

	assert.ErrorIs(t, s.Configure(context.Background()), state.ErrLocked)
}

func TestConfigureUnreachable(t *testing.T) {
	settings := testSettings(t)
	s, _ := newTestSession(t, settings, &mockIMD{}, "n\n")
	s.Pinger.Attempts = 1
	s.Pinger.Run = func(context.Context, string, ...string) error { return errors.New("exit status 1") }

	assert.ErrorIs(t, s.Configure(context.Background()), network.ErrUnreachable)
}

func TestFirmwareGateDeclined(t *testing.T) {
	settings := testSettings(t)
	imd := &mockIMD{version: "6.0.9"}
	// apply, decline the upgrade, stop
	s, out := newTestSession(t, settings, imd, "admin\npw1\npw1\nrack07-pdu-a1\ny\nn\nn\n")

	require.NoError(t, s.Configure(context.Background()))
	assert.Contains(t, out.String(), "IMD runs firmware 6.0.9; 6.1.2 is available.")

	h, err := config.LoadHistory(config.HistoryPath(settings.ConfigDir))
	require.NoError(t, err)
	assert.Equal(t, "6.0.9", h.Last().Firmware)
}

func TestFirmwareCheck(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{"6.1.2", "Firmware is current"},
		{"7.0.0", "Firmware is current"},
		{"5.9.1", "Firmware upgrade available"},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			s, out := newTestSession(t, testSettings(t), &mockIMD{version: tt.version}, "")
			require.NoError(t, s.FirmwareCheck(context.Background()))
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestCredentialReset(t *testing.T) {
	imd := &mockIMD{}
	s, out := newTestSession(t, testSettings(t), imd, "admin\npw1\npw2\npw1\npw1\n")

	require.NoError(t, s.CredentialReset(context.Background()))

	assert.Contains(t, out.String(), "Passwords do not match")
	reqs := imd.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/auth", reqs[0].Path)
	assert.Equal(t, "add", reqs[0].Body["cmd"])
	assert.Equal(t, map[string]any{"username": "admin", "password": "pw1"}, reqs[0].Body["data"])
}

func TestPasswordSet(t *testing.T) {
	imd := &mockIMD{}
	s, _ := newTestSession(t, testSettings(t), imd, "admin\nold-pw\nnew-pw\nnew-pw\n")

	require.NoError(t, s.PasswordSet(context.Background()))

	reqs := imd.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/auth/admin", reqs[0].Path)
	assert.Equal(t, "old-pw", reqs[0].Body["password"], "authenticates with the current password")
	assert.Equal(t, map[string]any{"password": "new-pw"}, reqs[0].Body["data"])
}

func TestPasswordSetRejected(t *testing.T) {
	imd := &mockIMD{fail: map[string]string{"/api/auth/admin": "Invalid credentials"}}
	s, out := newTestSession(t, testSettings(t), imd, "admin\nold-pw\nnew-pw\nnew-pw\n")

	err := s.PasswordSet(context.Background())
	var devErr *deviceconfig.DeviceError
	assert.True(t, errors.As(err, &devErr))
	assert.Contains(t, out.String(), "Setting password failed")
}

func TestScriptReset(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		imd := &mockIMD{}
		s, _ := newTestSession(t, testSettings(t), imd, "RESET\nadmin\npw\n")

		require.NoError(t, s.ScriptReset(context.Background()))
		reqs := imd.requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "/api/sys", reqs[0].Path)
		assert.Equal(t, "set", reqs[0].Body["cmd"])
		assert.Equal(t, map[string]any{"action": "reset"}, reqs[0].Body["data"])
	})

	t.Run("declined", func(t *testing.T) {
		imd := &mockIMD{}
		s, out := newTestSession(t, testSettings(t), imd, "reset please\n")

		require.NoError(t, s.ScriptReset(context.Background()))
		assert.Empty(t, imd.requests())
		assert.Contains(t, out.String(), "Factory reset cancelled.")
	})
}

func TestFirmwareUpgradeCachedImage(t *testing.T) {
	settings := testSettings(t)
	imd := &mockIMD{version: "6.1.2"}
	s, out := newTestSession(t, settings, imd, "admin\npw1\npw1\n")

	info, err := firmware.ParseURL(settings.FirmwareFileURL)
	require.NoError(t, err)
	image := s.Firmware.ImagePath(info)
	require.NoError(t, os.MkdirAll(filepath.Dir(image), 0o755))
	require.NoError(t, os.WriteFile(image, []byte("image"), 0600))

	require.NoError(t, s.FirmwareUpgrade(context.Background()))

	assert.Equal(t, []string{"/api/auth", "/upload/firmware"}, imd.posts())
	assert.Contains(t, out.String(), "Firmware upgraded")
}

func TestFirmwareUpgradeTimesOut(t *testing.T) {
	settings := testSettings(t)
	settings.RebootWait = 50 * time.Millisecond
	imd := &mockIMD{version: "6.0.9"}
	s, _ := newTestSession(t, settings, imd, "admin\npw1\npw1\n")

	info, err := firmware.ParseURL(settings.FirmwareFileURL)
	require.NoError(t, err)
	image := s.Firmware.ImagePath(info)
	require.NoError(t, os.MkdirAll(filepath.Dir(image), 0o755))
	require.NoError(t, os.WriteFile(image, []byte("image"), 0600))

	err = s.FirmwareUpgrade(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not report firmware 6.1.2")
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"6.1.2", "6.1.2", 0},
		{"6.1.2", "6.1.10", -1},
		{"6.2.0", "6.1.9", 1},
		{"6.1", "6.1.0", 0},
		{"Unknown", "6.1.2", -1},
	}
	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTroubleshooting(t *testing.T) {
	t.Run("bullets from the hint then extras", func(t *testing.T) {
		err := &deviceconfig.DeviceError{Type: deviceconfig.ErrTypeAuth}
		tips := troubleshooting(err, "Check factory_reset in the settings file")
		assert.Equal(t, []string{
			"Check the username and password for this IMD",
			"A unit configured earlier may need a factory reset",
			"Check factory_reset in the settings file",
		}, tips)
	})

	t.Run("single sentence hint is kept", func(t *testing.T) {
		err := deviceconfig.NewDeviceError("setting password failed", 1, "Invalid credentials")
		tips := troubleshooting(err)
		require.Len(t, tips, 1)
		assert.Contains(t, tips[0], "Invalid credentials (retCode 1)")
	})
}

func TestQuietDisablesAnimation(t *testing.T) {
	settings := testSettings(t)
	settings.Quiet = true

	var out bytes.Buffer
	s := New(settings, strings.NewReader(""), &out, true)
	assert.False(t, s.Interactive)

	require.NoError(t, s.withSpinner("Reading firmware version", func() error { return nil }))
	assert.Empty(t, out.String(), "a quiet spinner writes nothing")
}
