package automation

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"unicode"

	"github.com/go-rod/rod/lib/proto"
)

// Protocol modifier bitmask.
const (
	modAlt   = 1
	modCtrl  = 2
	modMeta  = 4
	modShift = 8
)

// keyStroke is a fully resolved key plus modifiers, ready to dispatch.
type keyStroke struct {
	Key       string
	Code      string
	Text      string
	VKCode    int
	Modifiers int
}

var namedKeys = map[string]keyStroke{
	"enter":      {Key: "Enter", Code: "Enter", Text: "\r", VKCode: 13},
	"tab":        {Key: "Tab", Code: "Tab", Text: "\t", VKCode: 9},
	"escape":     {Key: "Escape", Code: "Escape", VKCode: 27},
	"esc":        {Key: "Escape", Code: "Escape", VKCode: 27},
	"backspace":  {Key: "Backspace", Code: "Backspace", VKCode: 8},
	"delete":     {Key: "Delete", Code: "Delete", VKCode: 46},
	"space":      {Key: " ", Code: "Space", Text: " ", VKCode: 32},
	"arrowup":    {Key: "ArrowUp", Code: "ArrowUp", VKCode: 38},
	"arrowdown":  {Key: "ArrowDown", Code: "ArrowDown", VKCode: 40},
	"arrowleft":  {Key: "ArrowLeft", Code: "ArrowLeft", VKCode: 37},
	"arrowright": {Key: "ArrowRight", Code: "ArrowRight", VKCode: 39},
	"home":       {Key: "Home", Code: "Home", VKCode: 36},
	"end":        {Key: "End", Code: "End", VKCode: 35},
	"pageup":     {Key: "PageUp", Code: "PageUp", VKCode: 33},
	"pagedown":   {Key: "PageDown", Code: "PageDown", VKCode: 34},
	"f1":         {Key: "F1", Code: "F1", VKCode: 112},
	"f2":         {Key: "F2", Code: "F2", VKCode: 113},
	"f3":         {Key: "F3", Code: "F3", VKCode: 114},
	"f4":         {Key: "F4", Code: "F4", VKCode: 115},
	"f5":         {Key: "F5", Code: "F5", VKCode: 116},
	"f6":         {Key: "F6", Code: "F6", VKCode: 117},
	"f7":         {Key: "F7", Code: "F7", VKCode: 118},
	"f8":         {Key: "F8", Code: "F8", VKCode: 119},
	"f9":         {Key: "F9", Code: "F9", VKCode: 120},
	"f10":        {Key: "F10", Code: "F10", VKCode: 121},
	"f11":        {Key: "F11", Code: "F11", VKCode: 122},
	"f12":        {Key: "F12", Code: "F12", VKCode: 123},
}

// parseKeySpec parses a "Ctrl+Shift+K" style combination: zero or more
// modifier tokens followed by exactly one key token. Key tokens are
// either a named key or a single printable character.
func parseKeySpec(spec string) (keyStroke, error) {
	parts := strings.Split(spec, "+")
	switch {
	case spec == "+":
		// A bare plus is the plus key, not a separator.
		parts = []string{"+"}
	case strings.HasSuffix(spec, "++"):
		// "Ctrl++" means ctrl plus the plus key.
		parts = append(strings.Split(strings.TrimSuffix(spec, "++"), "+"), "+")
	}

	modifiers := 0
	keyToken := ""
	for i, part := range parts {
		token := strings.ToLower(strings.TrimSpace(part))
		if i < len(parts)-1 {
			switch token {
			case "ctrl", "control":
				modifiers |= modCtrl
			case "alt":
				modifiers |= modAlt
			case "shift":
				modifiers |= modShift
			case "meta", "cmd", "command":
				modifiers |= modMeta
			default:
				return keyStroke{}, fmt.Errorf("unknown modifier %q in %q", part, spec)
			}
			continue
		}
		keyToken = strings.TrimSpace(part)
	}
	if keyToken == "" {
		return keyStroke{}, fmt.Errorf("empty key in %q", spec)
	}

	ks, err := resolveKey(keyToken)
	if err != nil {
		return keyStroke{}, err
	}
	ks.Modifiers = modifiers
	return ks, nil
}

func resolveKey(token string) (keyStroke, error) {
	if named, ok := namedKeys[strings.ToLower(token)]; ok {
		return named, nil
	}
	runes := []rune(token)
	if len(runes) != 1 {
		return keyStroke{}, fmt.Errorf("unknown key %q", token)
	}
	r := runes[0]
	ks := keyStroke{Key: string(r), Text: string(r)}
	switch {
	case unicode.IsLetter(r):
		upper := unicode.ToUpper(r)
		ks.Code = "Key" + string(upper)
		ks.VKCode = int(upper)
	case unicode.IsDigit(r):
		ks.Code = "Digit" + string(r)
		ks.VKCode = int(r)
	default:
		ks.VKCode = int(r)
	}
	return ks, nil
}

// dispatchKey sends the down/up pair for one stroke. Combinations and
// non-printing keys go down as rawKeyDown; a plain printable key goes
// down as keyDown with text so the page sees the character.
func dispatchKey(ctx context.Context, c *Context, ks keyStroke) error {
	downType := proto.InputDispatchKeyEventTypeKeyDown
	text := ks.Text
	if ks.Text == "" || ks.Modifiers&^modShift != 0 {
		downType = proto.InputDispatchKeyEventTypeRawKeyDown
		text = ""
	}

	if err := c.call(ctx, &proto.InputDispatchKeyEvent{
		Type:                  downType,
		Modifiers:             ks.Modifiers,
		Key:                   ks.Key,
		Code:                  ks.Code,
		Text:                  text,
		WindowsVirtualKeyCode: ks.VKCode,
	}, nil); err != nil {
		return err
	}
	return c.call(ctx, &proto.InputDispatchKeyEvent{
		Type:                  proto.InputDispatchKeyEventTypeKeyUp,
		Modifiers:             ks.Modifiers,
		Key:                   ks.Key,
		Code:                  ks.Code,
		WindowsVirtualKeyCode: ks.VKCode,
	}, nil)
}

// selectAllModifier is the platform accelerator for select-all:
// command on macOS, control elsewhere.
func selectAllModifier() int {
	if runtime.GOOS == "darwin" {
		return modMeta
	}
	return modCtrl
}
