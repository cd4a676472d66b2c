package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rackops/imdcfg/internal/validate"
)

// Command is the device API verb carried in the request body.
type Command string

const (
	CmdSet    Command = "set"
	CmdAdd    Command = "add"
	CmdDelete Command = "delete"
)

// Valid reports whether c is one of set, add or delete.
func (c Command) Valid() bool {
	switch c {
	case CmdSet, CmdAdd, CmdDelete:
		return true
	}
	return false
}

// APICall is one resolved unit of work against the device. It is created
// once by the builder and never modified afterwards; a retry resends it
// byte for byte.
type APICall struct {
	Cmd     Command `json:"cmd"`
	Method  string  `json:"method"`
	APIPath string  `json:"api_path"`
	Data    Payload `json:"data,omitzero"`
}

func (c APICall) validate(item string) error {
	if !c.Cmd.Valid() {
		return specErrorf(item, "unknown cmd %q (want set, add or delete)", c.Cmd)
	}
	switch strings.ToLower(c.Method) {
	case "get", "post":
	default:
		return specErrorf(item, "unknown method %q (want get or post)", c.Method)
	}
	if c.APIPath == "" {
		return specErrorf(item, "api_path is empty")
	}
	return nil
}

// ConfigItemSpec declares one configuration item. Formatter items derive
// their call data from collected values through FormatSteps; default items
// carry literal data and no steps.
type ConfigItemSpec struct {
	ConfigItem     string      `json:"config_item"`
	ConfigItemName string      `json:"config_item_name"`
	FormatSteps    FormatSteps `json:"format_functions,omitempty"`
	DisplayToUser  Flag        `json:"display_to_user,omitempty"`
	ValueToDisplay *string     `json:"value_to_display,omitempty"`
	APICalls       []APICall   `json:"api_calls"`
}

// InputMode selects how a prompt reads its value.
type InputMode string

const (
	InputText   InputMode = "input"
	InputSecret InputMode = "getpass"
	InputNone   InputMode = "none"
)

// Prompt declares one value collected from the operator.
type Prompt struct {
	ConfigItem        string         `json:"config_item"`
	ConfigItemName    string         `json:"config_item_name,omitempty"`
	PromptText        string         `json:"prompt_text"`
	InputMode         InputMode      `json:"input_mode,omitempty"`
	UniqueValue       *Flag          `json:"unique_value,omitempty"`
	DefaultValue      string         `json:"default_value,omitempty"`
	EncryptDefault    Flag           `json:"encrypt_default,omitempty"`
	Salt              string         `json:"salt,omitempty"`
	EmptyAllowed      Flag           `json:"empty_allowed,omitempty"`
	GuessNextHostname Flag           `json:"guess_next_hostname,omitempty"`
	VerifySteps       validate.Steps `json:"verify_functions,omitempty"`
	FormatSteps       FormatSteps    `json:"format_functions,omitempty"`
}

// IsUnique reports whether the value differs per device and must be asked
// every run. Prompts without the key are unique.
func (p Prompt) IsUnique() bool {
	return p.UniqueValue == nil || bool(*p.UniqueValue)
}

// HasEncryptedDefault reports whether DefaultValue holds ciphertext.
func (p Prompt) HasEncryptedDefault() bool {
	return bool(p.EncryptDefault) && p.Salt != "" && p.DefaultValue != ""
}

// HasUnspecifiedDefault reports whether a shared value has not been
// captured yet.
func (p Prompt) HasUnspecifiedDefault() bool {
	return !p.IsUnique() && p.DefaultValue == ""
}

// Greeting is shown once when the wizard starts.
type Greeting struct {
	Text    string `json:"text"`
	Display Flag   `json:"display"`
}

// Document is a parsed prompts document.
type Document struct {
	Version         string           `json:"version,omitempty"`
	Greeting        Greeting         `json:"greeting"`
	Prompts         []Prompt         `json:"prompts"`
	Formatters      []ConfigItemSpec `json:"formatters"`
	Defaults        []ConfigItemSpec `json:"defaults"`
	APICallSequence []string         `json:"api_call_sequence"`
}

// ContainsEncryptedDefaults reports whether any prompt needs the passphrase.
func (d *Document) ContainsEncryptedDefaults() bool {
	for _, p := range d.Prompts {
		if p.HasEncryptedDefault() {
			return true
		}
	}
	return false
}

// ContainsUnspecifiedDefaults reports whether any shared value still has to
// be captured.
func (d *Document) ContainsUnspecifiedDefaults() bool {
	for _, p := range d.Prompts {
		if p.HasUnspecifiedDefault() {
			return true
		}
	}
	return false
}

// LoadDocument reads and validates a prompts document from disk.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return ParseDocument(data)
}

// ParseDocument decodes and validates a prompts document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		var specErr *SpecificationError
		if errors.As(err, &specErr) {
			return nil, specErr
		}
		return nil, &SpecificationError{Reason: "malformed JSON", Err: err}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the document for every error that can be found before a
// device is contacted.
func (d *Document) Validate() error {
	if len(d.APICallSequence) == 0 {
		return specErrorf("api_call_sequence", "missing or empty")
	}

	items := make(map[string]bool, len(d.Formatters)+len(d.Defaults))
	check := func(kind string, specs []ConfigItemSpec) error {
		for i, s := range specs {
			if s.ConfigItem == "" {
				return specErrorf(fmt.Sprintf("%s[%d]", kind, i), "config_item is empty")
			}
			if items[s.ConfigItem] {
				return specErrorf(s.ConfigItem, "config_item declared more than once")
			}
			items[s.ConfigItem] = true
			if len(s.APICalls) == 0 {
				return specErrorf(s.ConfigItem, "no api_calls")
			}
			for _, c := range s.APICalls {
				if err := c.validate(s.ConfigItem); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := check("formatters", d.Formatters); err != nil {
		return err
	}
	if err := check("defaults", d.Defaults); err != nil {
		return err
	}

	for _, name := range d.APICallSequence {
		if !items[name] {
			return specErrorf(name, "listed in api_call_sequence but not declared in formatters or defaults")
		}
	}

	if len(d.Prompts) == 0 {
		return nil
	}

	known := make(map[string]bool, len(d.Prompts))
	for i, p := range d.Prompts {
		if p.ConfigItem == "" {
			return specErrorf(fmt.Sprintf("prompts[%d]", i), "config_item is empty")
		}
		if known[p.ConfigItem] {
			return specErrorf(p.ConfigItem, "prompt declared more than once")
		}
		known[p.ConfigItem] = true
		switch p.InputMode {
		case "", InputText, InputSecret, InputNone:
		default:
			return specErrorf(p.ConfigItem, "unknown input_mode %q", p.InputMode)
		}
	}

	for _, f := range d.Formatters {
		for _, step := range f.FormatSteps {
			tmpl, ok := step.(Template)
			if !ok {
				continue
			}
			fields, _ := TemplateFields(tmpl.Pattern)
			for _, field := range fields {
				if !known[field] {
					return specErrorf(f.ConfigItem, "template references %q, which no prompt collects", field)
				}
			}
		}
	}
	return nil
}
