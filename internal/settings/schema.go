package settings

import (
	"github.com/invopop/jsonschema"
)

// UserSettings documents the user-editable namespace for the config
// schema endpoint. The struct exists for reflection only; live values
// stay in the string cache.
type UserSettings struct {
	Mention                 string `json:"mention,omitempty" jsonschema:"description=Mention string prepended to new-session notices"`
	MainColor               string `json:"main_color,omitempty" jsonschema:"description=Accent color for system notices,example=#3498db"`
	ModColor                string `json:"mod_color,omitempty" jsonschema:"description=Accent color for staff replies"`
	RecipientColor          string `json:"recipient_color,omitempty" jsonschema:"description=Accent color for recipient messages"`
	ModTag                  string `json:"mod_tag,omitempty" jsonschema:"description=Footer tag shown on staff replies"`
	AnonUsername            string `json:"anon_username,omitempty" jsonschema:"description=Display name used for anonymous staff replies"`
	AnonTag                 string `json:"anon_tag,omitempty" jsonschema:"description=Footer tag shown on anonymous staff replies"`
	AccountAge              string `json:"account_age,omitempty" jsonschema:"description=Minimum account age before a recipient may open a session,example=48h0m0s"`
	HistoryScanLimit        int    `json:"history_scan_limit,omitempty" jsonschema:"description=Maximum messages scanned when resolving a linked message,default=100"`
	ThreadCreationResponse  string `json:"thread_creation_response,omitempty" jsonschema:"description=Body of the greeting sent to a recipient on session open"`
	ThreadCreationTitle     string `json:"thread_creation_title,omitempty" jsonschema:"description=Title of the greeting sent on session open"`
	ThreadCloseResponse     string `json:"thread_close_response,omitempty" jsonschema:"description=Body of the notice sent to a recipient on session close"`
	ThreadSelfCloseResponse string `json:"thread_self_close_response,omitempty" jsonschema:"description=Close notice used when the recipient closed their own session"`
	ThreadCloseTitle        string `json:"thread_close_title,omitempty" jsonschema:"description=Title of the close notice"`
	ThreadCloseFooter       string `json:"thread_close_footer,omitempty" jsonschema:"description=Footer of the close notice"`
}

// Schema returns the JSON schema for the user-editable settings.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(&UserSettings{})
}
