package examflow

import "testing"

func TestKeymap_Resolve(t *testing.T) {
	custom := Keymap{Flag: "m"}
	tests := []struct {
		name        string
		keymap      Keymap
		key         string
		inTextField bool
		want        KeyBinding
	}{
		{"digit one", DefaultKeymap, "1", false, KeyBinding{Action: ActionSelect, Choice: 0}},
		{"digit four", DefaultKeymap, "4", false, KeyBinding{Action: ActionSelect, Choice: 3}},
		{"digit five unbound", DefaultKeymap, "5", false, KeyBinding{}},
		{"enter", DefaultKeymap, "enter", false, KeyBinding{Action: ActionSubmit}},
		{"flag", DefaultKeymap, "f", false, KeyBinding{Action: ActionToggleFlag}},
		{"flag upper case", DefaultKeymap, "F", false, KeyBinding{Action: ActionToggleFlag}},
		{"custom flag", custom, "m", false, KeyBinding{Action: ActionToggleFlag}},
		{"default flag not bound in custom map", custom, "f", false, KeyBinding{}},
		{"empty keymap falls back", Keymap{}, "f", false, KeyBinding{Action: ActionToggleFlag}},
		{"digit in text field", DefaultKeymap, "2", true, KeyBinding{}},
		{"enter in text field", DefaultKeymap, "enter", true, KeyBinding{}},
		{"flag in text field", DefaultKeymap, "f", true, KeyBinding{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.keymap.Resolve(tt.key, tt.inTextField); got != tt.want {
				t.Fatalf("Resolve(%q, %v) = %+v, want %+v", tt.key, tt.inTextField, got, tt.want)
			}
		})
	}
}
