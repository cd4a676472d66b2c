package state

import (
	"github.com/rackops/imdcfg/internal/dictutil"
	"github.com/rackops/imdcfg/internal/plan"
)

// CredentialsItem is the config item name of the synthetic entry that
// creates the device account. It is always the first item of a fresh plan.
const CredentialsItem = "credentials"

// NewCredentialsItem builds the synthetic credentials entry: one add call
// on the auth endpoint carrying the account to create.
func NewCredentialsItem(username, password string) plan.OrderedConfigItem {
	return plan.OrderedConfigItem{
		ConfigItem:     CredentialsItem,
		ConfigItemName: "IMD Credentials",
		APICalls: []plan.APICall{{
			Cmd:     plan.CmdAdd,
			Method:  "post",
			APIPath: "auth",
			Data: plan.ObjectPayload(map[string]any{
				"username": username,
				"password": password,
			}),
		}},
	}
}

// Credentials recovers the username and password stored in the credentials
// entry of items. The entry's data may be an object or, in files written by
// older releases, a single-quoted literal string.
func Credentials(items []plan.OrderedConfigItem) (username, password string, ok bool) {
	for _, item := range items {
		if item.ConfigItem != CredentialsItem || len(item.APICalls) == 0 {
			continue
		}
		data := payloadObject(item.APICalls[0].Data)
		username = dictutil.StringOr(data, "username", "")
		password = dictutil.StringOr(data, "password", "")
		return username, password, username != "" && password != ""
	}
	return "", "", false
}

func payloadObject(p plan.Payload) map[string]any {
	if obj, ok := p.Object(); ok {
		return obj
	}
	text, ok := p.Text()
	if !ok {
		return nil
	}
	obj, err := dictutil.ParseDictLiteral(text)
	if err != nil {
		return nil
	}
	return obj
}
