package axtree

import "strings"

// Canonical role names shared by every platform adapter.
const (
	RoleTextArea    = "textarea"
	RoleTextField   = "textfield"
	RoleSearchField = "searchfield"
	RoleComboBox    = "combobox"
	RoleWebArea     = "webarea"
	RoleDocument    = "document"
	RoleScrollArea  = "scrollarea"
	RoleGroup       = "group"
	RoleTable       = "table"
	RoleCell        = "cell"
	RoleWindow      = "window"
	RoleApplication = "application"
	RoleButton      = "button"
	RoleStaticText  = "statictext"
	RoleUnknown     = "unknown"
)

var roleAliases = map[string]string{
	// macOS AX roles after prefix stripping
	"textarea":        RoleTextArea,
	"textfield":       RoleTextField,
	"securetextfield": RoleTextField,
	"searchfield":     RoleSearchField,
	"combobox":        RoleComboBox,
	"webarea":         RoleWebArea,
	"scrollarea":      RoleScrollArea,
	"group":           RoleGroup,
	"splitgroup":      RoleGroup,
	"layoutarea":      RoleGroup,
	"table":           RoleTable,
	"outline":         RoleTable,
	"cell":            RoleCell,
	"window":          RoleWindow,
	"application":     RoleApplication,
	"button":          RoleButton,
	"statictext":      RoleStaticText,

	// AT-SPI role names
	"text":                RoleTextArea,
	"entry":               RoleTextField,
	"passwordtext":        RoleTextField,
	"editbar":             RoleTextField,
	"terminal":            RoleTextArea,
	"documentweb":         RoleWebArea,
	"documenttext":        RoleDocument,
	"documentframe":       RoleDocument,
	"documentspreadsheet": RoleTable,
	"document":            RoleDocument,
	"paragraph":           RoleTextArea,
	"scrollpane":          RoleScrollArea,
	"panel":               RoleGroup,
	"filler":              RoleGroup,
	"section":             RoleGroup,
	"tablecell":           RoleCell,
	"frame":               RoleWindow,
	"pushbutton":          RoleButton,
	"label":               RoleStaticText,
}

// NormalizeRole maps a platform role name ("AXTextArea", "text area",
// "ROLE_TEXT", "document web") onto the canonical vocabulary. Unknown roles
// are returned lower-cased with separators removed.
func NormalizeRole(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return RoleUnknown
	}
	if strings.HasPrefix(s, "AX") {
		s = s[2:]
	}
	s = strings.ToLower(s)
	s = strings.TrimPrefix(s, "role_")
	s = strings.TrimPrefix(s, "atspi_role_")
	s = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)

	if canon, ok := roleAliases[s]; ok {
		return canon
	}
	return s
}

// EditableRoles is the default allow-list used by profiles that do not
// declare their own.
func EditableRoles() []string {
	return []string{RoleTextArea, RoleTextField, RoleSearchField, RoleComboBox, RoleWebArea, RoleDocument}
}

// IsTextRole reports whether role is one the adapters treat as text input.
func IsTextRole(role string) bool {
	switch role {
	case RoleTextArea, RoleTextField, RoleSearchField, RoleComboBox, RoleDocument:
		return true
	}
	return false
}
