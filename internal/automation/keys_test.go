package automation

import "testing"

func TestParseKeySpec(t *testing.T) {
	tests := []struct {
		spec    string
		want    keyStroke
		wantErr bool
	}{
		{spec: "Enter", want: keyStroke{Key: "Enter", Code: "Enter", Text: "\r", VKCode: 13}},
		{spec: "a", want: keyStroke{Key: "a", Code: "KeyA", Text: "a", VKCode: 'A'}},
		{spec: "A", want: keyStroke{Key: "A", Code: "KeyA", Text: "A", VKCode: 'A'}},
		{spec: "5", want: keyStroke{Key: "5", Code: "Digit5", Text: "5", VKCode: '5'}},
		{spec: "Ctrl+a", want: keyStroke{Key: "a", Code: "KeyA", Text: "a", VKCode: 'A', Modifiers: modCtrl}},
		{spec: "Shift+Tab", want: keyStroke{Key: "Tab", Code: "Tab", Text: "\t", VKCode: 9, Modifiers: modShift}},
		{spec: "meta+c", want: keyStroke{Key: "c", Code: "KeyC", Text: "c", VKCode: 'C', Modifiers: modMeta}},
		{spec: "Ctrl+Shift+k", want: keyStroke{Key: "k", Code: "KeyK", Text: "k", VKCode: 'K', Modifiers: modCtrl | modShift}},
		{spec: "Ctrl+Alt+Delete", want: keyStroke{Key: "Delete", Code: "Delete", VKCode: 46, Modifiers: modCtrl | modAlt}},
		{spec: "escape", want: keyStroke{Key: "Escape", Code: "Escape", VKCode: 27}},
		{spec: "Ctrl++", want: keyStroke{Key: "+", Text: "+", VKCode: '+', Modifiers: modCtrl}},
		{spec: "+", want: keyStroke{Key: "+", Text: "+", VKCode: '+'}},
		{spec: "Bogus+x", wantErr: true},
		{spec: "Ctrl+NotAKey", wantErr: true},
		{spec: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseKeySpec(tt.spec)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseKeySpec(%q) = %+v, want error", tt.spec, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseKeySpec(%q): %v", tt.spec, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseKeySpec(%q) = %+v, want %+v", tt.spec, got, tt.want)
		}
	}
}
