// Package session runs the wizard's actions against one IMD.
//
// A Session is created once per process from the resolved settings and
// owns the device client, the terminal printer and prompter, the state
// store and the firmware cache. The device credentials and the state
// passphrase are acquired at most once per session and reused by every
// action that needs them.
//
// Actions:
//
//   - Configure: collect values, build and save the ordered calls (or
//     resume saved ones), confirm, check firmware, apply, clean up and
//     offer to configure another IMD
//   - FirmwareCheck: compare the running firmware with the configured release
//   - CredentialReset: create the device account
//   - PasswordSet: change the account password
//   - FirmwareUpgrade: download, upload and verify a firmware release
//   - ScriptReset: factory reset after a typed confirmation
package session
