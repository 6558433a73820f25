package browser

import (
	"sort"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// ariaRoles is the role vocabulary accepted by ParseRole. Keys are the
// lower-case ARIA names; values are the driver's role tokens.
var ariaRoles = func() map[string]playwright.AriaRole {
	names := []string{
		"alert", "alertdialog", "application", "article", "banner",
		"blockquote", "button", "caption", "cell", "checkbox",
		"code", "columnheader", "combobox", "complementary", "contentinfo",
		"definition", "deletion", "dialog", "directory", "document",
		"emphasis", "feed", "figure", "form", "generic",
		"grid", "gridcell", "group", "heading", "img",
		"insertion", "link", "list", "listbox", "listitem",
		"log", "main", "marquee", "math", "menu",
		"menubar", "menuitem", "menuitemcheckbox", "menuitemradio", "meter",
		"navigation", "none", "note", "option", "paragraph",
		"presentation", "progressbar", "radio", "radiogroup", "region",
		"row", "rowgroup", "rowheader", "scrollbar", "search",
		"searchbox", "separator", "slider", "spinbutton", "status",
		"strong", "subscript", "superscript", "switch", "tab",
		"table", "tablist", "tabpanel", "term", "textbox",
		"time", "timer", "toolbar", "tooltip", "tree",
		"treegrid", "treeitem",
	}
	roles := make(map[string]playwright.AriaRole, len(names))
	for _, name := range names {
		roles[name] = playwright.AriaRole(name)
	}
	return roles
}()

// ParseRole maps a role name to the driver's role token. Matching ignores
// case and surrounding whitespace. Unknown names fail with
// *UnknownRoleError; there is no fallback role.
func ParseRole(name string) (playwright.AriaRole, error) {
	role, ok := ariaRoles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", &UnknownRoleError{Role: name}
	}
	return role, nil
}

// Roles returns the accepted role names in sorted order.
func Roles() []string {
	names := make([]string, 0, len(ariaRoles))
	for name := range ariaRoles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
