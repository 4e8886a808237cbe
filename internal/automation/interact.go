package automation

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// Click scrolls the element into view and synthesizes a left click at
// its center.
func (c *Context) Click(ctx context.Context, id string) error {
	return c.clickElement(ctx, id, 1)
}

// DoubleClick is Click with clickCount 2 on both halves of the press,
// which is how the browser distinguishes a double click from two
// singles.
func (c *Context) DoubleClick(ctx context.Context, id string) error {
	return c.clickElement(ctx, id, 2)
}

func (c *Context) clickElement(ctx context.Context, id string, count int) error {
	node, err := c.resolveElement(id)
	if err != nil {
		return err
	}
	x, y, err := c.elementCenter(ctx, node.Backend)
	if err != nil {
		return err
	}
	if err := c.mouseMove(ctx, x, y); err != nil {
		return err
	}
	if err := c.call(ctx, &proto.InputDispatchMouseEvent{
		Type:       proto.InputDispatchMouseEventTypeMousePressed,
		X:          x,
		Y:          y,
		Button:     proto.InputMouseButtonLeft,
		ClickCount: count,
	}, nil); err != nil {
		return err
	}
	return c.call(ctx, &proto.InputDispatchMouseEvent{
		Type:       proto.InputDispatchMouseEventTypeMouseReleased,
		X:          x,
		Y:          y,
		Button:     proto.InputMouseButtonLeft,
		ClickCount: count,
	}, nil)
}

// Hover moves the pointer over the element's center without pressing.
func (c *Context) Hover(ctx context.Context, id string) error {
	node, err := c.resolveElement(id)
	if err != nil {
		return err
	}
	x, y, err := c.elementCenter(ctx, node.Backend)
	if err != nil {
		return err
	}
	return c.mouseMove(ctx, x, y)
}

// Fill replaces the element's current value with value: focus, select
// all, delete, then insert in one protocol call. Insertion bypasses
// per-key events, which is what makes it fast on long values.
func (c *Context) Fill(ctx context.Context, id, value string) error {
	node, err := c.resolveElement(id)
	if err != nil {
		return err
	}
	if err := c.scrollIntoView(ctx, node.Backend); err != nil {
		return err
	}
	if err := c.call(ctx, &proto.DOMFocus{BackendNodeID: node.Backend}, nil); err != nil {
		return err
	}
	selectAll := keyStroke{Key: "a", Code: "KeyA", VKCode: 'A', Modifiers: selectAllModifier()}
	if err := dispatchKey(ctx, c, selectAll); err != nil {
		return err
	}
	if err := dispatchKey(ctx, c, namedKeys["backspace"]); err != nil {
		return err
	}
	return c.call(ctx, &proto.InputInsertText{Text: value}, nil)
}

// SelectOption picks the option whose accessible name is value from a
// combobox or listbox, then fires the input and change events the page
// would see from a real selection. A missing option leaves the control
// untouched.
func (c *Context) SelectOption(ctx context.Context, id, value string) error {
	node, err := c.resolveElement(id)
	if err != nil {
		return err
	}
	role := strings.ToLower(node.Role)
	if role != "combobox" && role != "listbox" {
		return errCommandFailed(fmt.Errorf("element %s has role %q, not a select control", id, node.Role))
	}

	option := findOption(node, value)
	if option == nil {
		return errOptionNotFound(value)
	}

	optObj, err := c.resolveObject(ctx, option.Backend)
	if err != nil {
		return err
	}
	optValue, err := c.callOn(ctx, optObj, `function() { return this.value }`)
	if err != nil {
		return err
	}
	val := interface{}(option.Name)
	if optValue != nil && !optValue.Value.Nil() {
		val = optValue.Value.Val()
	}

	selObj, err := c.resolveObject(ctx, node.Backend)
	if err != nil {
		return err
	}
	_, err = c.callOn(ctx, selObj, `function(v) {
		this.value = v
		this.dispatchEvent(new Event('input', { bubbles: true }))
		this.dispatchEvent(new Event('change', { bubbles: true }))
	}`, val)
	return err
}

// findOption searches direct children first, then grandchildren, for
// an option named value. Grouped selects put options one level down.
func findOption(node *ElementNode, value string) *ElementNode {
	for _, child := range node.Children {
		if strings.EqualFold(child.Role, "option") && child.Name == value {
			return child
		}
	}
	for _, child := range node.Children {
		for _, grandchild := range child.Children {
			if strings.EqualFold(grandchild.Role, "option") && grandchild.Name == value {
				return grandchild
			}
		}
	}
	return nil
}

// Drag presses on the source element and releases on the target,
// moving through interpolated intermediate points so drag handlers
// that track motion fire.
func (c *Context) Drag(ctx context.Context, fromID, toID string) error {
	from, err := c.resolveElement(fromID)
	if err != nil {
		return err
	}
	to, err := c.resolveElement(toID)
	if err != nil {
		return err
	}
	fx, fy, err := c.elementCenter(ctx, from.Backend)
	if err != nil {
		return err
	}
	tx, ty, err := c.elementCenter(ctx, to.Backend)
	if err != nil {
		return err
	}

	if err := c.mouseMove(ctx, fx, fy); err != nil {
		return err
	}
	if err := c.call(ctx, &proto.InputDispatchMouseEvent{
		Type:       proto.InputDispatchMouseEventTypeMousePressed,
		X:          fx,
		Y:          fy,
		Button:     proto.InputMouseButtonLeft,
		ClickCount: 1,
	}, nil); err != nil {
		return err
	}

	const steps = 10
	for i := 1; i <= steps; i++ {
		t := float64(i) / steps
		if err := c.call(ctx, &proto.InputDispatchMouseEvent{
			Type:    proto.InputDispatchMouseEventTypeMouseMoved,
			X:       fx + (tx-fx)*t,
			Y:       fy + (ty-fy)*t,
			Button:  proto.InputMouseButtonLeft,
			Buttons: gson.Int(1),
		}, nil); err != nil {
			return err
		}
	}

	return c.call(ctx, &proto.InputDispatchMouseEvent{
		Type:       proto.InputDispatchMouseEventTypeMouseReleased,
		X:          tx,
		Y:          ty,
		Button:     proto.InputMouseButtonLeft,
		ClickCount: 1,
	}, nil)
}

// PressKey dispatches one key combination ("Enter", "Ctrl+a", ...) to
// whatever currently holds focus.
func (c *Context) PressKey(ctx context.Context, spec string) error {
	if _, err := c.boundTarget(); err != nil {
		return err
	}
	ks, err := parseKeySpec(spec)
	if err != nil {
		return errCommandFailed(err)
	}
	return dispatchKey(ctx, c, ks)
}

// TypeText inserts text into the focused element in one protocol
// call. Insertion bypasses per-key events, which keeps long strings
// fast and deterministic; use PressKey when a page needs real
// keystrokes.
func (c *Context) TypeText(ctx context.Context, text string) error {
	if _, err := c.boundTarget(); err != nil {
		return err
	}
	return c.call(ctx, &proto.InputInsertText{Text: text}, nil)
}

func (c *Context) mouseMove(ctx context.Context, x, y float64) error {
	return c.call(ctx, &proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseMoved,
		X:    x,
		Y:    y,
	}, nil)
}

func (c *Context) scrollIntoView(ctx context.Context, backend proto.DOMBackendNodeID) error {
	return c.call(ctx, &proto.DOMScrollIntoViewIfNeeded{BackendNodeID: backend}, nil)
}

// elementCenter scrolls the node into view and returns the center of
// its content box in viewport coordinates.
func (c *Context) elementCenter(ctx context.Context, backend proto.DOMBackendNodeID) (float64, float64, error) {
	if err := c.scrollIntoView(ctx, backend); err != nil {
		return 0, 0, err
	}
	var res proto.DOMGetBoxModelResult
	if err := c.call(ctx, &proto.DOMGetBoxModel{BackendNodeID: backend}, &res); err != nil {
		return 0, 0, err
	}
	if res.Model == nil || len(res.Model.Content) < 8 {
		return 0, 0, errCommandFailed(fmt.Errorf("element has no box model"))
	}
	q := res.Model.Content
	x := (q[0] + q[2] + q[4] + q[6]) / 4
	y := (q[1] + q[3] + q[5] + q[7]) / 4
	return x, y, nil
}

// resolveObject promotes a DOM node to a runtime object for script
// calls against it.
func (c *Context) resolveObject(ctx context.Context, backend proto.DOMBackendNodeID) (proto.RuntimeRemoteObjectID, error) {
	var res proto.DOMResolveNodeResult
	if err := c.call(ctx, &proto.DOMResolveNode{BackendNodeID: backend}, &res); err != nil {
		return "", err
	}
	if res.Object == nil || res.Object.ObjectID == "" {
		return "", errCommandFailed(fmt.Errorf("node did not resolve to an object"))
	}
	return res.Object.ObjectID, nil
}

// callOn invokes fn with this bound to the given object. Page-side
// exceptions come back as command failures.
func (c *Context) callOn(ctx context.Context, objectID proto.RuntimeRemoteObjectID, fn string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	callArgs := make([]*proto.RuntimeCallArgument, len(args))
	for i, a := range args {
		callArgs[i] = &proto.RuntimeCallArgument{Value: gson.New(a)}
	}
	var res proto.RuntimeCallFunctionOnResult
	if err := c.call(ctx, &proto.RuntimeCallFunctionOn{
		FunctionDeclaration: fn,
		ObjectID:            objectID,
		Arguments:           callArgs,
		ReturnByValue:       true,
		AwaitPromise:        true,
	}, &res); err != nil {
		return nil, err
	}
	if res.ExceptionDetails != nil {
		return nil, errCommandFailed(fmt.Errorf("%s", exceptionText(res.ExceptionDetails)))
	}
	return res.Result, nil
}
