package examflow

import "strings"

// KeyAction is what a key press means to an active section.
type KeyAction int

const (
	ActionNone KeyAction = iota
	ActionSelect
	ActionSubmit
	ActionToggleFlag
)

// KeyBinding is a resolved key press. Choice is the zero based choice index
// for ActionSelect.
type KeyBinding struct {
	Action KeyAction
	Choice int
}

// Keymap holds the configurable part of the key bindings. Digits 1-4 and
// Enter are fixed.
type Keymap struct {
	Flag string
}

// DefaultKeymap binds "f" to the review flag.
var DefaultKeymap = Keymap{Flag: "f"}

// Resolve maps a key name ("1", "enter", "f", ...) to an action. Every
// binding is disabled while a text field has focus.
func (k Keymap) Resolve(key string, inTextField bool) KeyBinding {
	if inTextField {
		return KeyBinding{}
	}
	switch key {
	case "1", "2", "3", "4":
		return KeyBinding{Action: ActionSelect, Choice: int(key[0] - '1')}
	case "enter":
		return KeyBinding{Action: ActionSubmit}
	}
	flag := k.Flag
	if flag == "" {
		flag = DefaultKeymap.Flag
	}
	if strings.EqualFold(key, flag) {
		return KeyBinding{Action: ActionToggleFlag}
	}
	return KeyBinding{}
}
