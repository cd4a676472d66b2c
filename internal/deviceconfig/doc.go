// Package deviceconfig applies configuration to a Vertiv Geist IMD through
// its local HTTPS API.
//
// Every call is a JSON document posted to https://<ip>/api/<path>:
//
//	{"token": "", "cmd": "add", "data": {...}}                       // add
//	{"username": "u", "password": "p", "cmd": "set", "data": {...}}  // set
//	{"username": "u", "password": "p", "cmd": "delete"}              // delete
//
// and the device answers with {"retCode": 0, "retMsg": "...", "data": ...}.
// IMDs use a self-signed certificate, so the client does not verify it.
//
// # Applying a plan
//
// The Applier sends a list of plan.OrderedConfigItem in order:
//
//	client := deviceconfig.NewClient("192.168.123.123")
//	client.SetAuth(username, password)
//
//	applier := deviceconfig.NewApplier(client, operator)
//	ok, err := applier.ApplyAll(ctx, items)
//	if errors.Is(err, deviceconfig.ErrAbortRun) {
//	    // operator gave up
//	}
//
// A failed call is retried silently with a constant delay, then the
// operator is asked whether to try again, skip the call or abort. Responses
// that mean "already done" (existing credentials, deleting a missing path)
// count as success, so a resumed run can resend its whole list.
//
// # Error Handling
//
// Transport failures are returned as *DeviceError classified by cause
// (timeout, refused, DNS, TLS). A non-zero retCode becomes ErrTypeDevice
// with the device's retMsg kept verbatim.
package deviceconfig
