package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rackops/imdcfg/internal/config"
	"github.com/rackops/imdcfg/internal/deviceconfig"
	"github.com/rackops/imdcfg/internal/logging"
	"github.com/rackops/imdcfg/internal/session"
	"github.com/rackops/imdcfg/internal/state"
	"github.com/rackops/imdcfg/internal/ui"
	"github.com/rackops/imdcfg/internal/version"
)

// app holds the state shared by every command of one process.
type app struct {
	v        *viper.Viper
	cfgFile  string
	settings *config.Settings

	mu   sync.Mutex
	sess *session.Session
}

func newApp() *app {
	return &app{v: config.NewViper()}
}

// close releases the lock file and restores the terminal of the running
// session, if there is one. Safe to call more than once.
func (a *app) close() {
	a.mu.Lock()
	sess := a.sess
	a.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// run adapts a session action into a cobra RunE.
func (a *app) run(action func(*session.Session, context.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		sess := session.New(a.settings, cmd.InOrStdin(), cmd.OutOrStdout(), ui.IsTerminal(os.Stdout))
		a.mu.Lock()
		a.sess = sess
		a.mu.Unlock()
		defer a.close()
		return action(sess, cmd.Context())
	}
}

// loadSettings resolves flags, environment and the settings file, then
// starts logging.
func (a *app) loadSettings(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.settings = settings

	if err := logging.InitializeWithOptions(logging.Options{
		Level: settings.LogLevel,
		File:  settings.LogFile,
	}); err != nil {
		return err
	}
	logging.Debug("settings loaded",
		zap.String("command", cmd.Name()),
		zap.String("ip", settings.IP),
		zap.String("settings_file", settings.ConfigFileUsed),
		zap.String("prompts_file", settings.PromptsFile),
		zap.String("state_file", settings.StateFile))
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "imd-cfg",
		Short: "Vertiv Geist IMD Configuration Wizard",
		Long: `A configuration wizard for Vertiv Geist IMD rack PDUs.

Creates the device account and pushes the settings described by the
prompts file over the IMD's local HTTPS API. Interrupted or partly
failed runs are saved and can be resumed.

If no command is specified, the configuration wizard starts.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.loadSettings,
		RunE:              a.run((*session.Session).Configure),
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	addPersistentFlags(rootCmd.PersistentFlags(), a)

	rootCmd.AddCommand(
		newConfigureCmd(a),
		newFirmwareCmd(a),
		newUpgradeCmd(a),
		newResetCmd(a),
		newSetPasswordCmd(a),
		newSetCredentialsCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func addPersistentFlags(flags *pflag.FlagSet, a *app) {
	flags.StringVar(&a.cfgFile, "config", "", "settings file (default is <config-dir>/config.yaml)")
	flags.String("ip", deviceconfig.DefaultIP, "IMD address")
	flags.String("config-dir", "", "configuration directory (default is "+config.DefaultConfigDir()+")")
	flags.String("prompts-file", "", "prompts file (default is <config-dir>/"+config.DefaultPromptsFile+")")
	flags.String("state-file", "", "saved configuration file (default is <config-dir>/"+state.DefaultFilename+")")
	flags.String("firmware-dir", "", "firmware cache (default is "+config.DefaultFirmwareDir()+")")
	flags.Int("retries", deviceconfig.DefaultRetries, "attempts per API call")
	flags.Duration("retry-delay", deviceconfig.DefaultRetryDelay, "delay between attempts")
	flags.Duration("timeout", deviceconfig.DefaultTimeout, "HTTP timeout per request")
	flags.String("spinner", "line", "spinner style ("+strings.Join(ui.SpinnerNames(), ", ")+")")
	flags.Bool("quiet", false, "no spinner or progress animation")
	flags.String("firmware-url", config.DefaultFirmwareURL, "firmware release to compare against and install")
	flags.Bool("check-firmware", true, "check the IMD firmware before applying a configuration")
	flags.Bool("encrypt-state", true, "encrypt the saved configuration")
	flags.Bool("remember-passphrase", false, "keep the state passphrase in the OS keyring")
	flags.Bool("use-lock-file", true, "refuse to run while another wizard holds the state lock")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this file")

	bind := map[string]string{
		config.KeyIP:                 "ip",
		config.KeyConfigDir:          "config-dir",
		config.KeyPromptsFile:        "prompts-file",
		config.KeyStateFile:          "state-file",
		config.KeyFirmwareDir:        "firmware-dir",
		config.KeyRetries:            "retries",
		config.KeyRetryDelay:         "retry-delay",
		config.KeyTimeout:            "timeout",
		config.KeySpinner:            "spinner",
		config.KeyQuiet:              "quiet",
		config.KeyFirmwareFileURL:    "firmware-url",
		config.KeyCheckFirmware:      "check-firmware",
		config.KeyEncryptTempFile:    "encrypt-state",
		config.KeyRememberPassphrase: "remember-passphrase",
		config.KeyUseLockFile:        "use-lock-file",
		config.KeyLogLevel:           "log-level",
		config.KeyLogFile:            "log-file",
	}
	for key, name := range bind {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}
}

func newConfigureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Configure an IMD from the prompts file",
		Long: `Collect the values described by the prompts file, show the resulting
plan and apply it to the IMD.

A saved configuration from an earlier run is offered for resume first.
After a successful run you can configure the next IMD in the rack; its
hostname is guessed from the previous one.`,
		Example: `  # Configure the IMD on the default address
  imd-cfg configure

  # Another address and prompts file
  imd-cfg configure --ip 192.168.123.123 --prompts-file ./row4.json`,
		RunE: a.run((*session.Session).Configure),
	}
}

func newFirmwareCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "firmware",
		Short: "Show the IMD firmware version",
		Long:  `Read the running firmware version and compare it with the configured release.`,
		RunE:  a.run((*session.Session).FirmwareCheck),
	}
}

func newUpgradeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade the IMD firmware",
		Long: `Download the configured firmware release (or reuse the cached copy),
upload it to the IMD and wait for it to restart on the new version.`,
		Example: `  imd-cfg upgrade --firmware-url https://example.com/geist-i03-6_1_2.zip`,
		RunE:    a.run((*session.Session).FirmwareUpgrade),
	}
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Factory reset the IMD",
		Long: `Restore the IMD to factory defaults. The IMD address must be typed to
confirm, then the current account credentials are asked for.`,
		RunE: a.run((*session.Session).ScriptReset),
	}
}

func newSetPasswordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-password",
		Short: "Change the IMD account password",
		RunE:  a.run((*session.Session).PasswordSet),
	}
}

func newSetCredentialsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-credentials",
		Short: "Create the IMD account",
		Long:  `Create the administrator account on an IMD that has none yet.`,
		RunE:  a.run((*session.Session).CredentialReset),
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List IMDs configured from this workstation",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.HistoryPath(a.settings.ConfigDir)
			history, err := config.LoadHistory(path)
			if err != nil {
				return err
			}
			printer := ui.NewPrinter(cmd.OutOrStdout())
			printer.PrintHistory(history.Recent(limit))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show (0 for all)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Printing the version needs no settings.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "imd-cfg "+version.Full())
		},
	}
}
