package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rackops/imdcfg/internal/config"
	"github.com/rackops/imdcfg/internal/deviceconfig"
	"github.com/rackops/imdcfg/internal/encryption"
	"github.com/rackops/imdcfg/internal/firmware"
	"github.com/rackops/imdcfg/internal/logging"
	"github.com/rackops/imdcfg/internal/plan"
	"github.com/rackops/imdcfg/internal/prompt"
	"github.com/rackops/imdcfg/internal/state"
	"github.com/rackops/imdcfg/internal/ui"
)

// Configure runs the configuration wizard against the IMD, then offers to
// configure another one with the same credentials.
func (s *Session) Configure(ctx context.Context) error {
	if s.Settings.UseLockFile {
		if err := s.acquireLock(); err != nil {
			return err
		}
		defer s.Close()
	}

	previous := s.lastValues()
	for {
		values, err := s.configureOne(ctx, previous)
		if err != nil {
			return err
		}

		another, err := s.Prompter.Confirm("Configure another IMD?")
		if err != nil {
			return err
		}
		if !another {
			return nil
		}
		if len(values) > 0 {
			previous = values
		}
		s.Printer.Newline()
	}
}

// configureOne configures a single IMD and returns the non-secret values
// that were collected for it.
func (s *Session) configureOne(ctx context.Context, previous map[string]string) (map[string]string, error) {
	s.Printer.PrintHeader("IMD Configuration", "configure",
		ui.Detail{Key: "IMD", Value: s.IP()},
		ui.Detail{Key: "Prompts", Value: s.Settings.PromptsFile},
	)

	if err := s.ping(ctx); err != nil {
		return nil, err
	}

	items, resumed, err := s.resume()
	if err != nil {
		return nil, err
	}

	var doc *plan.Document
	var values []plan.ResolvedValue
	if !resumed {
		doc, values, items, err = s.build(previous)
		if err != nil {
			return nil, err
		}
	}
	record := s.historyValues(doc, values)
	if !resumed {
		s.warnConfigured(hostnameOf(doc, record))
	}

	s.Printer.PrintPlan(plan.Displayable(items))
	proceed, err := s.Prompter.Confirm("Apply this configuration to the IMD?")
	if err != nil {
		return nil, err
	}
	if !proceed {
		s.Printer.Info("Configuration not applied.")
		return record, s.offerDelete()
	}

	if err := s.ping(ctx); err != nil {
		return nil, err
	}

	version := deviceconfig.UnknownFirmware
	if s.Settings.CheckFirmware {
		version, err = s.firmwareGate(ctx)
		if err != nil {
			return nil, err
		}
	}

	complete, err := s.apply(ctx, items)
	if err != nil {
		return nil, err
	}

	if complete {
		if err := s.clearState(); err != nil {
			return nil, err
		}
		s.Printer.PrintSuccess("IMD configured",
			ui.Detail{Key: "IMD", Value: s.IP()},
			ui.Detail{Key: "Settings", Value: strconv.Itoa(len(items))},
		)
	} else {
		s.Printer.Warning("Some settings were skipped. The saved configuration can be resumed later.")
		if err := s.offerDelete(); err != nil {
			return nil, err
		}
	}

	s.recordHistory(doc, record, version, complete)
	return record, nil
}

// resume offers to continue from the saved state. It reports false when
// there is nothing to resume or the operator chose to start over, in which
// case the saved state has been deleted.
func (s *Session) resume() ([]plan.OrderedConfigItem, bool, error) {
	if !s.Store.Exists() {
		return nil, false, nil
	}
	when, err := s.Store.ModTime()
	if err != nil {
		return nil, false, err
	}

	s.Printer.Warning(fmt.Sprintf("Found a saved configuration from %s.", when))
	again, err := s.Prompter.Confirm("Resume the saved configuration?")
	if err != nil {
		return nil, false, err
	}
	if !again {
		if err := s.clearState(); err != nil {
			return nil, false, err
		}
		s.Printer.Info("Saved configuration deleted.")
		return nil, false, nil
	}

	encrypted, err := s.Store.IsEncrypted()
	if err != nil {
		return nil, false, err
	}

	retry := false
	for {
		var passphrase string
		if encrypted {
			passphrase, err = s.passphraseFor(retry)
			if err != nil {
				return nil, false, err
			}
		}

		items, err := s.Store.Load(passphrase)
		if err == nil {
			if username, password, ok := state.Credentials(items); ok {
				s.setCredentials(username, password)
			}
			s.rememberPassphrase()
			logging.Info("resumed saved configuration", zap.String("path", s.Store.Path()), zap.Int("items", len(items)))
			return items, true, nil
		}
		if !errors.Is(err, encryption.ErrDecryption) {
			return nil, false, err
		}

		s.Printer.Error("Unable to decrypt the saved configuration with that passphrase.")
		again, err := s.Prompter.Confirm("Try the passphrase again?")
		if err != nil {
			return nil, false, err
		}
		if !again {
			return nil, false, prompt.ErrAbandoned
		}
		retry = true
	}
}

// build collects values for a fresh configuration, builds the ordered
// calls with the credentials entry first and saves them.
func (s *Session) build(previous map[string]string) (*plan.Document, []plan.ResolvedValue, []plan.OrderedConfigItem, error) {
	doc, err := plan.LoadDocument(s.Settings.PromptsFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if !s.greeted && bool(doc.Greeting.Display) {
		s.Printer.PrintGreeting(doc.Greeting.Text)
	}
	s.greeted = true

	collector := &prompt.Collector{
		Prompter:       s.Prompter,
		Iterations:     s.Settings.EncryptionIterations,
		Passphrase:     s.passphraseFor,
		HostnameFormat: s.Settings.HostnameFormat,
		Previous:       previous,
	}
	if _, err := collector.CaptureDefaults(s.Settings.PromptsFile, doc); err != nil {
		return nil, nil, nil, err
	}

	username, password, err := s.credentials()
	if err != nil {
		return nil, nil, nil, err
	}

	values, err := collector.Collect(doc)
	if err != nil {
		return nil, nil, nil, err
	}
	built, err := plan.BuildOrderedCalls(doc, values)
	if err != nil {
		return nil, nil, nil, err
	}
	items := append([]plan.OrderedConfigItem{state.NewCredentialsItem(username, password)}, built...)

	var passphrase string
	if s.Settings.EncryptTempFile {
		if passphrase, err = s.passphraseFor(false); err != nil {
			return nil, nil, nil, err
		}
	}
	if err := s.Store.Save(items, passphrase); err != nil {
		return nil, nil, nil, err
	}
	s.rememberPassphrase()
	logging.Info("saved configuration", zap.String("path", s.Store.Path()), zap.Int("items", len(items)))
	return doc, values, items, nil
}

// apply sends every item through the retry state machine.
func (s *Session) apply(ctx context.Context, items []plan.OrderedConfigItem) (bool, error) {
	applier := deviceconfig.NewApplier(s.Device, s.Prompter)
	applier.Spinner = s.Spinner
	applier.Reporter = s.Printer
	applier.Retries = s.Settings.Retries
	applier.RetryDelay = s.Settings.RetryDelay
	if len(s.Settings.TransientRetCodes) > 0 {
		applier.TransientCodes = s.Settings.TransientRetCodes
	}
	return applier.ApplyAll(ctx, items)
}

// firmwareGate compares the running firmware with the release named by
// firmware_file_url and offers an upgrade when the IMD is older. It returns
// the version the IMD runs afterwards.
func (s *Session) firmwareGate(ctx context.Context) (string, error) {
	var current string
	err := s.withSpinner("Reading firmware version", func() error {
		var err error
		current, err = s.Device.FirmwareVersion(ctx)
		return err
	})
	if err != nil {
		s.Printer.Warning("Unable to read the firmware version: " + deviceconfig.GetShortErrorMessage(err))
		return deviceconfig.UnknownFirmware, nil
	}

	info, err := firmware.ParseURL(s.Settings.FirmwareFileURL)
	if err != nil {
		return current, err
	}
	target, ok := info.Version()
	if !ok || compareVersions(current, target) >= 0 {
		s.Printer.Success("IMD firmware " + current)
		return current, nil
	}

	s.Printer.Warning(fmt.Sprintf("IMD runs firmware %s; %s is available.", current, target))
	upgrade, err := s.Prompter.Confirm("Upgrade the firmware before applying the configuration?")
	if err != nil {
		return current, err
	}
	if !upgrade {
		return current, nil
	}
	if err := s.upgrade(ctx, info); err != nil {
		return current, err
	}
	return target, nil
}

// historyValues returns the collected values that are safe to keep on
// disk.
func (s *Session) historyValues(doc *plan.Document, values []plan.ResolvedValue) map[string]string {
	if doc == nil {
		return nil
	}
	secret := make(map[string]bool)
	for _, p := range doc.Prompts {
		if p.InputMode == plan.InputSecret || p.EncryptDefault {
			secret[p.ConfigItem] = true
		}
	}
	out := make(map[string]string, len(values))
	for _, v := range values {
		if !secret[v.ConfigItem] {
			out[v.ConfigItem] = v.Value
		}
	}
	return out
}

// history loads the device history. A history that cannot be read is
// logged and treated as empty.
func (s *Session) history() *config.History {
	h, err := config.LoadHistory(config.HistoryPath(s.Settings.ConfigDir))
	if err != nil {
		logging.Warn("reading history failed", zap.Error(err))
		return config.NewHistory()
	}
	return h
}

// lastValues returns the values of the IMD configured last from this
// workstation, so the first hostname of a run can be guessed too.
func (s *Session) lastValues() map[string]string {
	if last := s.history().Last(); last != nil {
		return last.Values
	}
	return nil
}

// warnConfigured warns when hostname was already given to an IMD.
func (s *Session) warnConfigured(hostname string) {
	if hostname == "" {
		return
	}
	rec := s.history().FindByHostname(hostname)
	if rec == nil {
		return
	}
	s.Printer.Warning(fmt.Sprintf("%s was already configured on %s (%s).",
		hostname, rec.IP, rec.ConfiguredAt.Local().Format("2006-01-02 15:04")))
}

// recordHistory appends the run to the device history. Failures are only
// logged.
func (s *Session) recordHistory(doc *plan.Document, values map[string]string, version string, complete bool) {
	rec := config.DeviceRecord{
		Hostname: hostnameOf(doc, values),
		IP:       s.IP(),
		Complete: complete,
		Values:   values,
	}
	if version != deviceconfig.UnknownFirmware {
		rec.Firmware = version
	}
	if err := config.AppendHistory(config.HistoryPath(s.Settings.ConfigDir), rec); err != nil {
		logging.Warn("recording history failed", zap.Error(err))
	}
}

// hostnameOf picks the value of the prompt that guesses the next hostname,
// falling back to a "hostname" item.
func hostnameOf(doc *plan.Document, values map[string]string) string {
	if doc != nil {
		for _, p := range doc.Prompts {
			if p.GuessNextHostname {
				if v := values[p.ConfigItem]; v != "" {
					return v
				}
			}
		}
	}
	return values["hostname"]
}

// compareVersions orders dotted numeric versions. Unparseable fields
// compare as zero.
func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y int
		if i < len(as) {
			x, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			y, _ = strconv.Atoi(bs[i])
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}
