package plan

import (
	"fmt"
	"strings"

	"github.com/rackops/imdcfg/internal/dictutil"
)

// ResolvedValue is one validated, formatted value collected from the
// operator (or taken from a shared default).
type ResolvedValue struct {
	ConfigItem string `json:"config_item"`
	Value      string `json:"value"`
}

// OrderedConfigItem is one configuration item ready to be applied. The
// ordered list of these is what gets persisted and resumed.
type OrderedConfigItem struct {
	ConfigItem     string    `json:"config_item"`
	ConfigItemName string    `json:"config_item_name"`
	DisplayToUser  Flag      `json:"display_to_user"`
	ValueToDisplay string    `json:"value_to_display,omitempty"`
	APICalls       []APICall `json:"api_calls"`
}

// ValueMap indexes resolved values by config item. Later entries win.
func ValueMap(values []ResolvedValue) map[string]string {
	m := make(map[string]string, len(values))
	for _, v := range values {
		m[v.ConfigItem] = v.Value
	}
	return m
}

// BuildOrderedCalls resolves every formatter against values, merges in the
// defaults and returns the items in api_call_sequence order. Declaration
// order of formatters and defaults has no influence on the result.
func BuildOrderedCalls(doc *Document, values []ResolvedValue) ([]OrderedConfigItem, error) {
	lookup := ValueMap(values)
	items := make(map[string]OrderedConfigItem, len(doc.Formatters)+len(doc.Defaults))

	for _, f := range doc.Formatters {
		item := OrderedConfigItem{
			ConfigItem:     f.ConfigItem,
			ConfigItemName: f.ConfigItemName,
			DisplayToUser:  f.DisplayToUser,
		}
		if f.ValueToDisplay != nil {
			// A display value that cannot be resolved is simply not shown.
			if shown, err := ResolveTemplate(*f.ValueToDisplay, lookup); err == nil {
				item.ValueToDisplay = shown
			}
		}

		data, err := ApplyFormatSteps(f.FormatSteps, "", lookup)
		if err != nil {
			return nil, &SpecificationError{Item: f.ConfigItem, Reason: "cannot build call data", Err: err}
		}
		if err := checkMapping(data); err != nil {
			return nil, &SpecificationError{Item: f.ConfigItem, Reason: "call data is not a mapping", Err: err}
		}
		for _, call := range f.APICalls {
			call.Data = TextPayload(data)
			item.APICalls = append(item.APICalls, call)
		}
		items[f.ConfigItem] = item
	}

	for _, d := range doc.Defaults {
		item := OrderedConfigItem{
			ConfigItem:     d.ConfigItem,
			ConfigItemName: d.ConfigItemName,
			DisplayToUser:  d.DisplayToUser,
			APICalls:       append([]APICall(nil), d.APICalls...),
		}
		if d.ValueToDisplay != nil {
			item.ValueToDisplay = *d.ValueToDisplay
		}
		items[d.ConfigItem] = item
	}

	ordered := make([]OrderedConfigItem, 0, len(doc.APICallSequence))
	for _, name := range doc.APICallSequence {
		item, ok := items[name]
		if !ok {
			return nil, specErrorf(name, "listed in api_call_sequence but not declared in formatters or defaults")
		}
		ordered = append(ordered, item)
	}
	return ordered, nil
}

// checkMapping fails unless data is empty or a mapping literal, the only
// shapes the client can send.
func checkMapping(data string) error {
	if strings.TrimSpace(data) == "" {
		return nil
	}
	if !dictutil.LooksLikeDict(data) {
		return fmt.Errorf("rendered %q", data)
	}
	if _, err := dictutil.ParseDictLiteral(data); err != nil {
		return fmt.Errorf("invalid mapping literal: %w", err)
	}
	return nil
}

// Displayable returns the items the operator is asked to confirm: those
// flagged display_to_user with a non-empty value_to_display.
func Displayable(items []OrderedConfigItem) []OrderedConfigItem {
	var shown []OrderedConfigItem
	for _, item := range items {
		if item.DisplayToUser && item.ValueToDisplay != "" {
			shown = append(shown, item)
		}
	}
	return shown
}
