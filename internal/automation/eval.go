package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

// EvaluateScript runs script in the page and returns its JSON-mapped
// result. With args, script is treated as a function body with the
// values exposed through arguments; without, it is evaluated as a bare
// expression. A page-side exception surfaces as a command failure
// carrying the exception text.
func (c *Context) EvaluateScript(ctx context.Context, script string, args []interface{}) (interface{}, error) {
	if _, err := c.boundTarget(); err != nil {
		return nil, err
	}

	expression := script
	if len(args) > 0 {
		encoded := make([]string, len(args))
		for i, a := range args {
			raw, err := json.Marshal(a)
			if err != nil {
				return nil, errCommandFailed(fmt.Errorf("encoding argument %d: %w", i, err))
			}
			encoded[i] = string(raw)
		}
		expression = fmt.Sprintf("(async function() {\n%s\n})(%s)", script, strings.Join(encoded, ", "))
	}

	var res proto.RuntimeEvaluateResult
	if err := c.call(ctx, &proto.RuntimeEvaluate{
		Expression:    expression,
		ReturnByValue: true,
		AwaitPromise:  true,
	}, &res); err != nil {
		return nil, err
	}
	if res.ExceptionDetails != nil {
		return nil, errCommandFailed(fmt.Errorf("%s", exceptionText(res.ExceptionDetails)))
	}
	if res.Result == nil || res.Result.Value.Nil() {
		return nil, nil
	}
	return res.Result.Value.Val(), nil
}

// exceptionText pulls the most descriptive message out of a runtime
// exception: the thrown value's description when present, otherwise
// the protocol summary.
func exceptionText(details *proto.RuntimeExceptionDetails) string {
	if details.Exception != nil && details.Exception.Description != "" {
		return details.Exception.Description
	}
	if details.Text != "" {
		return details.Text
	}
	return "script threw an exception"
}
