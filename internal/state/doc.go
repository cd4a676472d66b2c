// Package state persists the in-flight list of configuration items so an
// interrupted run can resume where it stopped.
//
// The state file is either a plain JSON array of plan.OrderedConfigItem or,
// when encryption is enabled and a passphrase is known, two lines:
//
//	salt: <hex>
//	<hex ciphertext of the same JSON array>
//
// Writes go to a temporary file first and are renamed into place, so a
// crash or interrupt leaves either the old file or the new one, never a
// partial write. A wrong passphrase never modifies the file.
//
// A lock file next to the state file keeps two runs from sharing one
// configuration directory.
package state
