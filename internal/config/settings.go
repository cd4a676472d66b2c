package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/rackops/imdcfg/internal/deviceconfig"
	"github.com/rackops/imdcfg/internal/encryption"
	"github.com/rackops/imdcfg/internal/firmware"
	"github.com/rackops/imdcfg/internal/plan"
	"github.com/rackops/imdcfg/internal/state"
	"github.com/rackops/imdcfg/internal/validate"
)

const (
	appName = "imd-cfg"

	// EnvPrefix prefixes every environment override, e.g. IMDCFG_IP.
	EnvPrefix = "IMDCFG"

	// DefaultPromptsFile is looked up in the config directory.
	DefaultPromptsFile = "prompts.json"

	// DefaultFirmwareURL is the release the firmware gate compares against.
	DefaultFirmwareURL = "https://www.vertiv.com/49aa2a/globalassets/documents/geist-i03-6_1_2-04302024.zip"

	// DefaultUploadPath is where firmware images are posted.
	DefaultUploadPath = "/upload/firmware"
)

// Settings keys. Flags bound to viper use the same names with '-' for '_'.
const (
	KeyIP                   = "ip"
	KeyConfigDir            = "config_dir"
	KeyPromptsFile          = "prompts_file"
	KeyStateFile            = "state_file"
	KeyFirmwareDir          = "firmware_dir"
	KeyRetries              = "retries"
	KeyRetryDelay           = "retry_delay"
	KeyTransientRetCodes    = "transient_ret_codes"
	KeyTimeout              = "timeout"
	KeyEncryptionIterations = "encryption_iterations"
	KeyEncryptTempFile      = "encrypt_temp_file"
	KeyRememberPassphrase   = "remember_passphrase"
	KeyUseLockFile          = "use_lock_file"
	KeySpinner              = "spinner"
	KeyQuiet                = "quiet"
	KeyFirmwareFileURL      = "firmware_file_url"
	KeyFirmwareUploadPath   = "firmware_upload_path"
	KeyDownloadTimeout      = "download_timeout"
	KeyCheckFirmware        = "check_firmware"
	KeyRebootWait           = "reboot_wait"
	KeyHostnameFormat       = "hostname_format"
	KeyFactoryReset         = "factory_reset"
	KeyLogLevel             = "log_level"
	KeyLogFile              = "log_file"
)

// CallSettings is an API call as written in the settings file.
type CallSettings struct {
	Cmd     string         `mapstructure:"cmd" yaml:"cmd"`
	Method  string         `mapstructure:"method" yaml:"method"`
	APIPath string         `mapstructure:"api_path" yaml:"api_path"`
	Data    map[string]any `mapstructure:"data" yaml:"data,omitempty"`
}

// APICall converts the settings form into a call the client can send.
func (c CallSettings) APICall() plan.APICall {
	call := plan.APICall{
		Cmd:     plan.Command(c.Cmd),
		Method:  c.Method,
		APIPath: c.APIPath,
	}
	if c.Data != nil {
		call.Data = plan.ObjectPayload(c.Data)
	}
	return call
}

// Settings is the resolved configuration of one run.
type Settings struct {
	IP          string `mapstructure:"ip"`
	ConfigDir   string `mapstructure:"config_dir"`
	PromptsFile string `mapstructure:"prompts_file"`
	StateFile   string `mapstructure:"state_file"`
	FirmwareDir string `mapstructure:"firmware_dir"`

	Retries           int           `mapstructure:"retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	TransientRetCodes []int         `mapstructure:"transient_ret_codes"`
	Timeout           time.Duration `mapstructure:"timeout"`

	EncryptionIterations int  `mapstructure:"encryption_iterations"`
	EncryptTempFile      bool `mapstructure:"encrypt_temp_file"`
	RememberPassphrase   bool `mapstructure:"remember_passphrase"`
	UseLockFile          bool `mapstructure:"use_lock_file"`

	Spinner string `mapstructure:"spinner"`
	// Quiet turns off the spinner and animated progress bars.
	Quiet bool `mapstructure:"quiet"`

	FirmwareFileURL    string        `mapstructure:"firmware_file_url"`
	FirmwareUploadPath string        `mapstructure:"firmware_upload_path"`
	DownloadTimeout    time.Duration `mapstructure:"download_timeout"`
	CheckFirmware      bool          `mapstructure:"check_firmware"`
	RebootWait         time.Duration `mapstructure:"reboot_wait"`

	HostnameFormat validate.HostnameFormat `mapstructure:"hostname_format"`
	FactoryReset   CallSettings            `mapstructure:"factory_reset"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// ConfigFileUsed is the settings file that was read, if any.
	ConfigFileUsed string `mapstructure:"-"`
}

// DefaultConfigDir is $XDG_CONFIG_HOME/imd-cfg.
func DefaultConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// DefaultFirmwareDir is $XDG_CACHE_HOME/imd-cfg/firmware.
func DefaultFirmwareDir() string {
	return filepath.Join(xdg.CacheHome, appName, "firmware")
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyIP, deviceconfig.DefaultIP)
	v.SetDefault(KeyConfigDir, "")
	v.SetDefault(KeyPromptsFile, "")
	v.SetDefault(KeyStateFile, "")
	v.SetDefault(KeyFirmwareDir, "")
	v.SetDefault(KeyRetries, deviceconfig.DefaultRetries)
	v.SetDefault(KeyRetryDelay, deviceconfig.DefaultRetryDelay)
	v.SetDefault(KeyTransientRetCodes, deviceconfig.DefaultTransientCodes)
	v.SetDefault(KeyTimeout, deviceconfig.DefaultTimeout)
	v.SetDefault(KeyEncryptionIterations, encryption.DefaultIterations)
	v.SetDefault(KeyEncryptTempFile, true)
	v.SetDefault(KeyRememberPassphrase, false)
	v.SetDefault(KeyUseLockFile, true)
	v.SetDefault(KeySpinner, "line")
	v.SetDefault(KeyQuiet, false)
	v.SetDefault(KeyFirmwareFileURL, DefaultFirmwareURL)
	v.SetDefault(KeyFirmwareUploadPath, DefaultUploadPath)
	v.SetDefault(KeyDownloadTimeout, firmware.DefaultDownloadTimeout)
	v.SetDefault(KeyCheckFirmware, true)
	v.SetDefault(KeyRebootWait, 3*time.Minute)
	v.SetDefault(KeyHostnameFormat, map[string]any{
		"hostname_regex":       `(.+)([a,b,A,B])(\d)$`,
		"variable_group_index": 1,
		"sequence":             []string{"a", "b"},
	})
	v.SetDefault(KeyFactoryReset, map[string]any{
		"cmd":      "set",
		"method":   "post",
		"api_path": "sys",
		"data":     map[string]any{"action": "reset"},
	})
	v.SetDefault(KeyLogLevel, "")
	v.SetDefault(KeyLogFile, "")
}

// NewViper returns a viper instance with defaults and IMDCFG_* environment
// overrides wired.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the settings file (configFile, or config.{yaml,json} in the
// config directory when empty) and resolves v into Settings. A missing
// default settings file is not an error; a missing explicit one is.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", configFile, err)
		}
	} else {
		dir := v.GetString(KeyConfigDir)
		if dir == "" {
			dir = DefaultConfigDir()
		}
		v.SetConfigName("config")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read settings file: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.ConfigFileUsed = v.ConfigFileUsed()
	s.resolvePaths()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// resolvePaths fills in paths left empty from the config directory.
func (s *Settings) resolvePaths() {
	if s.ConfigDir == "" {
		s.ConfigDir = DefaultConfigDir()
	}
	if s.PromptsFile == "" {
		s.PromptsFile = filepath.Join(s.ConfigDir, DefaultPromptsFile)
	}
	if s.StateFile == "" {
		s.StateFile = filepath.Join(s.ConfigDir, state.DefaultFilename)
	}
	if s.FirmwareDir == "" {
		s.FirmwareDir = DefaultFirmwareDir()
	}
}

// Validate reports the first setting that cannot work.
func (s *Settings) Validate() error {
	switch {
	case strings.TrimSpace(s.IP) == "":
		return errors.New("ip must not be empty")
	case s.Retries < 0:
		return fmt.Errorf("retries must be zero or more (got %d)", s.Retries)
	case s.RetryDelay < 0:
		return fmt.Errorf("retry_delay must not be negative (got %s)", s.RetryDelay)
	case s.EncryptionIterations < 1:
		return fmt.Errorf("encryption_iterations must be positive (got %d)", s.EncryptionIterations)
	}

	if s.HostnameFormat.Regex != "" {
		if _, err := regexp.Compile(s.HostnameFormat.Regex); err != nil {
			return fmt.Errorf("hostname_format.hostname_regex is invalid: %w", err)
		}
	}
	if s.FirmwareFileURL != "" {
		if _, err := firmware.ParseURL(s.FirmwareFileURL); err != nil {
			return fmt.Errorf("firmware_file_url: %w", err)
		}
	}
	if !plan.Command(s.FactoryReset.Cmd).Valid() {
		return fmt.Errorf("factory_reset.cmd %q is not one of set, add, delete", s.FactoryReset.Cmd)
	}
	return nil
}
