// Package plan turns a prompts document into the ordered list of device API
// calls that configure one IMD.
//
// A prompts document declares the values to collect from the operator
// (prompts), the configuration items derived from those values through
// format steps (formatters), fixed configuration items (defaults), and the
// order in which the resulting items are pushed to the device
// (api_call_sequence). Everything that can be checked without a device is
// checked when the document is loaded: unknown format steps, unbalanced
// templates, unknown commands and sequence names that match no item are all
// reported as *SpecificationError.
//
// The builder is pure. It never touches the network or the filesystem, so
// the ordering and formatting rules are tested entirely offline.
package plan
