package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/rackops/imdcfg/internal/deviceconfig"
	"github.com/rackops/imdcfg/internal/firmware"
	"github.com/rackops/imdcfg/internal/logging"
	"github.com/rackops/imdcfg/internal/ui"
)

// FirmwareCheck reads the running firmware version and compares it with
// the release named by firmware_file_url.
func (s *Session) FirmwareCheck(ctx context.Context) error {
	s.Printer.PrintHeader("Firmware Check", "firmware", ui.Detail{Key: "IMD", Value: s.IP()})
	if err := s.ping(ctx); err != nil {
		return err
	}

	var current string
	err := s.withSpinner("Reading firmware version", func() error {
		var err error
		current, err = s.Device.FirmwareVersion(ctx)
		return err
	})
	if err != nil {
		s.Printer.PrintFailure("Unable to read firmware version", err, troubleshooting(err,
			"A factory-reset IMD accepts requests only after credentials are set",
		))
		return err
	}

	details := []ui.Detail{{Key: "IMD", Value: s.IP()}, {Key: "Running", Value: current}}
	info, err := firmware.ParseURL(s.Settings.FirmwareFileURL)
	if err != nil {
		return err
	}
	target, ok := info.Version()
	if !ok {
		s.Printer.PrintSuccess("Firmware version", details...)
		return nil
	}
	details = append(details, ui.Detail{Key: "Available", Value: target})
	if compareVersions(current, target) < 0 {
		s.Printer.PrintResult(ui.NewWarningResult("Firmware upgrade available", details...))
		return nil
	}
	s.Printer.PrintSuccess("Firmware is current", details...)
	return nil
}

// CredentialReset creates the device account on an IMD that has none,
// typically right after a factory reset.
func (s *Session) CredentialReset(ctx context.Context) error {
	s.Printer.PrintHeader("Set Credentials", "set-credentials", ui.Detail{Key: "IMD", Value: s.IP()})
	if err := s.ping(ctx); err != nil {
		return err
	}
	username, password, err := s.credentials()
	if err != nil {
		return err
	}

	err = s.withSpinner("Adding credentials", func() error {
		return s.Device.AddCredentials(ctx, username, password)
	})
	if err != nil {
		s.Printer.PrintFailure("Adding credentials failed", err, troubleshooting(err,
			"The IMD may already have an account; use set-password to change it",
		))
		return err
	}
	s.Printer.PrintSuccess("Credentials set", ui.Detail{Key: "Username", Value: username})
	return nil
}

// PasswordSet changes the password of the device account, authenticating
// with the current one.
func (s *Session) PasswordSet(ctx context.Context) error {
	s.Printer.PrintHeader("Change Password", "set-password", ui.Detail{Key: "IMD", Value: s.IP()})
	if err := s.ping(ctx); err != nil {
		return err
	}

	s.Printer.Info("Current account")
	username, _, err := s.currentLogin()
	if err != nil {
		return err
	}
	s.Printer.Info("New password")
	newPassword, err := s.Prompter.Password()
	if err != nil {
		return err
	}

	err = s.withSpinner("Setting password", func() error {
		return s.Device.SetPassword(ctx, username, newPassword)
	})
	if err != nil {
		s.Printer.PrintFailure("Setting password failed", err, troubleshooting(err,
			"Check the current username and password",
		))
		return err
	}
	s.setCredentials(username, newPassword)
	s.Printer.PrintSuccess("Password changed", ui.Detail{Key: "Username", Value: username})
	return nil
}

// currentLogin asks for an existing account once; unlike credentials the
// password is asked a single time.
func (s *Session) currentLogin() (string, string, error) {
	if s.username != "" && s.password != "" {
		return s.username, s.password, nil
	}
	username, err := s.Prompter.InputWithDefault("Username", "")
	if err != nil {
		return "", "", err
	}
	password, err := s.Prompter.Secret("Current password")
	if err != nil {
		return "", "", err
	}
	s.setCredentials(username, password)
	return username, password, nil
}

// FirmwareUpgrade installs the release named by firmware_file_url.
func (s *Session) FirmwareUpgrade(ctx context.Context) error {
	info, err := firmware.ParseURL(s.Settings.FirmwareFileURL)
	if err != nil {
		return err
	}
	s.Printer.PrintHeader("Firmware Upgrade", "upgrade",
		ui.Detail{Key: "IMD", Value: s.IP()},
		ui.Detail{Key: "Firmware", Value: info.Filename},
	)
	if err := s.ping(ctx); err != nil {
		return err
	}
	return s.upgrade(ctx, info)
}

// upgrade fetches the image when it is not cached, uploads it and waits
// for the IMD to come back with the new version.
func (s *Session) upgrade(ctx context.Context, info firmware.URLInfo) error {
	steps := ui.NewSteps("Locate firmware image", "Upload firmware", "Wait for restart")
	target, haveTarget := info.Version()

	s.Printer.Println(steps.Update(1, ui.StepRunning, ""))
	image, err := s.locateImage(ctx, info)
	if err != nil {
		s.Printer.Println(steps.Update(1, ui.StepFailed, err.Error()))
		return err
	}
	s.Printer.Println(steps.Update(1, ui.StepComplete, image))

	username, password, err := s.credentials()
	if err != nil {
		return err
	}
	// The upload form authenticates, so the account must exist.
	err = s.withSpinner("Checking credentials", func() error {
		return s.Device.AddCredentials(ctx, username, password)
	})
	if err != nil {
		s.Printer.Println(steps.Update(2, ui.StepFailed, deviceconfig.GetShortErrorMessage(err)))
		return err
	}

	fi, err := os.Stat(image)
	if err != nil {
		return fmt.Errorf("failed to read firmware image: %w", err)
	}
	bar := ui.NewTransferBar(s.Printer.Writer(), "Uploading "+fi.Name(), fi.Size(), s.Interactive)
	err = s.Device.UploadFirmware(ctx, s.Settings.FirmwareUploadPath, image, bar.Set)
	bar.Finish()
	if err != nil {
		s.Printer.Println(steps.Update(2, ui.StepFailed, deviceconfig.GetShortErrorMessage(err)))
		s.Printer.PrintFailure("Firmware upload failed", err, troubleshooting(err,
			"Check that the image matches the IMD model",
			"Retry with a fresh download by removing "+s.Firmware.Dir,
		))
		return err
	}
	s.Printer.Println(steps.Update(2, ui.StepComplete, ui.FormatBytes(fi.Size())))

	s.Printer.Println(steps.Update(3, ui.StepRunning, "up to "+s.Settings.RebootWait.String()))
	version, err := s.awaitVersion(ctx, target, haveTarget)
	if err != nil {
		s.Printer.Println(steps.Update(3, ui.StepFailed, err.Error()))
		return err
	}
	s.Printer.Println(steps.Update(3, ui.StepComplete, version))
	logging.Info("firmware upgraded", zap.String("ip", s.IP()), zap.String("version", version))

	s.Printer.PrintSuccess("Firmware upgraded",
		ui.Detail{Key: "IMD", Value: s.IP()},
		ui.Detail{Key: "Version", Value: version},
	)
	return nil
}

// locateImage returns the cached firmware image, downloading and
// extracting the archive as needed.
func (s *Session) locateImage(ctx context.Context, info firmware.URLInfo) (string, error) {
	st := s.Firmware.Locate(info)
	if st.HaveImage {
		return st.ImagePath, nil
	}
	if !st.HaveArchive {
		s.Firmware.Progress = func(total int64) io.Writer {
			return ui.NewTransferBar(s.Printer.Writer(), "Downloading "+info.Filename, total, s.Interactive)
		}
		if _, err := s.Firmware.Download(ctx, info); err != nil {
			return "", err
		}
	}
	return s.Firmware.Extract(info)
}

// awaitVersion polls the firmware version until the IMD reports target
// (or any version when target is unknown) or reboot_wait runs out.
func (s *Session) awaitVersion(ctx context.Context, target string, haveTarget bool) (string, error) {
	wait := s.Settings.RebootWait
	if wait <= 0 {
		wait = 3 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var version string
	err := backoff.Retry(func() error {
		v, err := s.Device.FirmwareVersion(ctx)
		if err != nil {
			return err
		}
		if haveTarget && v != target {
			return fmt.Errorf("IMD still reports firmware %s", v)
		}
		version = v
		return nil
	}, backoff.WithContext(backoff.NewConstantBackOff(interval), ctx))
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("IMD did not report firmware %s within %s", target, wait)
		}
		return "", err
	}
	return version, nil
}

// ScriptReset returns the IMD to factory defaults after the operator types
// the confirmation phrase.
func (s *Session) ScriptReset(ctx context.Context) error {
	s.Printer.PrintHeader("Factory Reset", "reset", ui.Detail{Key: "IMD", Value: s.IP()})
	if err := s.ping(ctx); err != nil {
		return err
	}

	confirmed, err := ui.ConfirmFactoryReset(s.Prompter, s.Printer.Writer(), s.IP())
	if err != nil {
		return err
	}
	if !confirmed {
		s.Printer.Info("Factory reset cancelled.")
		return nil
	}

	if _, _, err := s.currentLogin(); err != nil {
		return err
	}
	err = s.withSpinner("Resetting IMD", func() error {
		return s.Device.FactoryReset(ctx, s.Settings.FactoryReset.APICall())
	})
	if err != nil {
		s.Printer.PrintFailure("Factory reset failed", err, troubleshooting(err,
			"Check factory_reset in the settings file",
		))
		return err
	}
	logging.Info("factory reset sent", zap.String("ip", s.IP()))
	s.Printer.PrintSuccess("Factory reset started",
		ui.Detail{Key: "IMD", Value: s.IP()},
		ui.Detail{Key: "Next", Value: "the IMD restarts with default settings"},
	)
	return nil
}

// troubleshooting turns the hint for err into result lines, followed by
// extra advice specific to the action.
func troubleshooting(err error, extra ...string) []string {
	var bullets, prose []string
	for _, line := range strings.Split(deviceconfig.GetTroubleshootingHint(err), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "" || line == "Troubleshooting:":
		case strings.HasPrefix(line, "•"):
			bullets = append(bullets, strings.TrimSpace(strings.TrimPrefix(line, "•")))
		default:
			prose = append(prose, line)
		}
	}
	if len(bullets) == 0 {
		bullets = prose
	}
	return append(bullets, extra...)
}
