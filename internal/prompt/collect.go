package prompt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/rackops/imdcfg/internal/dictutil"
	"github.com/rackops/imdcfg/internal/encryption"
	"github.com/rackops/imdcfg/internal/logging"
	"github.com/rackops/imdcfg/internal/plan"
	"github.com/rackops/imdcfg/internal/ui"
	"github.com/rackops/imdcfg/internal/validate"
)

// ErrAbandoned is returned when the operator gives up after a wrong
// passphrase.
var ErrAbandoned = errors.New("passphrase entry abandoned")

// PassphraseFunc returns the passphrase for encrypted defaults. retry is
// true when the previous answer failed to decrypt, so a cached value must
// not be returned again.
type PassphraseFunc func(retry bool) (string, error)

// Collector walks the prompts of a document and turns operator answers into
// resolved values.
type Collector struct {
	Prompter       *Prompter
	Iterations     int
	Passphrase     PassphraseFunc
	HostnameFormat validate.HostnameFormat

	// Previous holds the values collected for the last IMD configured,
	// used to guess the next hostname.
	Previous map[string]string
}

// Collect asks every unique prompt and returns the formatted values in
// prompt order. Shared prompts that already carry a default, and prompts
// with input mode "none", use their default without asking.
func (c *Collector) Collect(doc *plan.Document) ([]plan.ResolvedValue, error) {
	secrets, err := c.DecryptDefaults(doc)
	if err != nil {
		return nil, err
	}

	known := make(map[string]string, len(doc.Prompts))
	values := make([]plan.ResolvedValue, 0, len(doc.Prompts))
	for _, p := range doc.Prompts {
		def := p.DefaultValue
		if p.HasEncryptedDefault() {
			def = secrets[p.ConfigItem]
		}

		var raw string
		if p.InputMode == plan.InputNone || (!p.IsUnique() && def != "") {
			raw = def
		} else {
			if p.GuessNextHostname {
				if guess, ok := c.HostnameFormat.GuessNextHostname(c.Previous[p.ConfigItem]); ok {
					def = guess
				}
			}
			raw, err = c.ask(p, def)
			if err != nil {
				return nil, err
			}
		}

		value, err := plan.ApplyFormatSteps(p.FormatSteps, raw, known)
		if err != nil {
			return nil, fmt.Errorf("failed to format %s: %w", p.ConfigItem, err)
		}
		known[p.ConfigItem] = value
		values = append(values, plan.ResolvedValue{ConfigItem: p.ConfigItem, Value: value})
	}
	return values, nil
}

// ask prompts until the answer passes the prompt's verify steps.
func (c *Collector) ask(p plan.Prompt, def string) (string, error) {
	for {
		var answer string
		var err error
		if p.InputMode == plan.InputSecret {
			answer, err = c.Prompter.Secret(p.PromptText)
			if answer == "" {
				answer = def
			}
		} else {
			answer, err = c.Prompter.InputWithDefault(p.PromptText, def)
			answer = strings.TrimSpace(answer)
		}
		if err != nil {
			return "", err
		}

		if err := validate.Input(p.VerifySteps, bool(p.EmptyAllowed), answer); err != nil {
			_, _ = fmt.Fprintln(c.Prompter.Out(), ui.ErrorMessageStyle.Render("Invalid value: "+err.Error()))
			continue
		}
		return answer, nil
	}
}

// DecryptDefaults decrypts every encrypted default in doc, keyed by
// config_item. A wrong passphrase is reported and the operator may try
// again or abandon, in which case ErrAbandoned is returned.
func (c *Collector) DecryptDefaults(doc *plan.Document) (map[string]string, error) {
	out := make(map[string]string)
	if !doc.ContainsEncryptedDefaults() {
		return out, nil
	}
	if c.Passphrase == nil {
		return nil, errors.New("encrypted defaults present but no passphrase source configured")
	}

	retry := false
	for {
		passphrase, err := c.Passphrase(retry)
		if err != nil {
			return nil, err
		}

		failed := false
		for _, p := range doc.Prompts {
			if !p.HasEncryptedDefault() {
				continue
			}
			plain, err := encryption.Decrypt(p.Salt, p.DefaultValue, passphrase, c.Iterations)
			if err != nil {
				logging.Debug("decrypting default failed", zap.String("config_item", p.ConfigItem))
				failed = true
				break
			}
			out[p.ConfigItem] = plain
		}
		if !failed {
			return out, nil
		}

		_, _ = fmt.Fprintln(c.Prompter.Out(), ui.ErrorMessageStyle.Render("Unable to decrypt the stored defaults with that passphrase."))
		again, err := c.Prompter.Confirm("Try the passphrase again?")
		if err != nil {
			return nil, err
		}
		if !again {
			return nil, ErrAbandoned
		}
		retry = true
	}
}

// CaptureDefaults asks for every shared prompt that has no default yet,
// encrypting answers for prompts marked encrypt_default, and writes them
// back to the prompts file at path. doc is updated in place. It returns the
// number of values captured.
func (c *Collector) CaptureDefaults(path string, doc *plan.Document) (int, error) {
	if !doc.ContainsUnspecifiedDefaults() {
		return 0, nil
	}

	_, _ = fmt.Fprintln(c.Prompter.Out(), ui.ProgressLabelStyle.Render("Some shared values have not been set yet. They are asked once and saved to the prompts file."))

	captured := make(map[string]plan.Prompt)
	for i, p := range doc.Prompts {
		if !p.HasUnspecifiedDefault() {
			continue
		}
		answer, err := c.ask(p, "")
		if err != nil {
			return 0, err
		}

		p.DefaultValue = answer
		if p.EncryptDefault && answer != "" {
			passphrase, err := c.passphrase()
			if err != nil {
				return 0, err
			}
			salt, cipherText, err := encryption.Encrypt(passphrase, answer, nil, c.Iterations)
			if err != nil {
				return 0, fmt.Errorf("failed to encrypt default for %s: %w", p.ConfigItem, err)
			}
			p.Salt, p.DefaultValue = salt, cipherText
		}
		doc.Prompts[i] = p
		captured[p.ConfigItem] = p
	}

	if err := writeDefaults(path, captured); err != nil {
		return 0, err
	}
	logging.Info("captured shared defaults", zap.Int("count", len(captured)), zap.String("path", path))
	return len(captured), nil
}

func (c *Collector) passphrase() (string, error) {
	if c.Passphrase == nil {
		return "", errors.New("encrypt_default set but no passphrase source configured")
	}
	return c.Passphrase(false)
}

// writeDefaults rewrites default_value and salt of the captured prompts in
// the file at path, leaving every other key as it was.
func writeDefaults(path string, captured map[string]plan.Prompt) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read prompts file: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse prompts file: %w", err)
	}
	prompts, _ := raw["prompts"].([]any)
	entries := make([]map[string]any, 0, len(prompts))
	for _, entry := range prompts {
		if m, ok := entry.(map[string]any); ok {
			entries = append(entries, m)
		}
	}
	for item, p := range captured {
		// entries share their maps with raw
		m := dictutil.FindByKeyValue(entries, "config_item", item)
		if len(m) == 0 {
			continue
		}
		m["default_value"] = p.DefaultValue
		if p.Salt != "" {
			m["salt"] = p.Salt
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(raw); err != nil {
		return fmt.Errorf("failed to encode prompts file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".prompts-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write prompts file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write prompts file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write prompts file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace prompts file: %w", err)
	}
	return nil
}
