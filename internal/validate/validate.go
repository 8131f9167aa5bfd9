// Package validate checks candidate function calls against the tool catalog
// and the request text. Validation runs in two stages: schema validity
// (shape) and semantic validity (plausibility). Schema failures discard the
// result outright; semantic failures are repair-eligible.
package validate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/fncall"
	"github.com/tandem-ai/tandem/internal/timeparse"
)

// Kind separates the two failure classes of the validator.
type Kind int

const (
	// KindSchema: unknown tool, missing required argument, type mismatch.
	// Not repairable; the shape itself is wrong.
	KindSchema Kind = iota
	// KindSemantic: implausible values, poor grounding, time disagreement.
	// Eligible for deterministic repair before escalation.
	KindSemantic
)

// Error is a validation failure for one call.
type Error struct {
	Kind   Kind
	Call   string // tool name, or raw name for unknown tools
	Reason string
}

func (e *Error) Error() string {
	stage := "schema"
	if e.Kind == KindSemantic {
		stage = "semantic"
	}
	return fmt.Sprintf("%s invalid: %s: %s", stage, e.Call, e.Reason)
}

// IsSchema reports whether err is a schema-stage failure.
func IsSchema(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Kind == KindSchema
}

// IsSemantic reports whether err is a semantic-stage failure.
func IsSemantic(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Kind == KindSemantic
}

// Validator checks calls against a fixed catalog.
type Validator struct {
	cat *catalog.Catalog

	// UndeclaredTolerance is the maximum fraction of arguments on a call
	// that may be absent from the tool's schema.
	UndeclaredTolerance float64

	// GroundingOverlap is the minimum token overlap for a multi-word
	// string argument that is not an exact substring of the source text.
	GroundingOverlap float64
}

// New returns a validator with the default tolerances.
func New(cat *catalog.Catalog) *Validator {
	return &Validator{
		cat:                 cat,
		UndeclaredTolerance: 0.34,
		GroundingOverlap:    0.5,
	}
}

// fillerPrefixes must not survive on title-like arguments.
var fillerPrefixes = []string{"the ", "remind me to ", "remind me about "}

// Call validates one candidate call against the catalog and the text it was
// produced from. sourceText may be empty, which skips grounding and time
// agreement.
func (v *Validator) Call(c fncall.Call, sourceText string) error {
	tool, err := v.schema(c)
	if err != nil {
		return err
	}
	return v.semantic(tool, c, sourceText)
}

// Schema runs only the shape stage: the tool exists, required arguments are
// present and declared arguments carry their declared types.
func (v *Validator) Schema(c fncall.Call) error {
	_, err := v.schema(c)
	return err
}

func (v *Validator) schema(c fncall.Call) (catalog.Tool, error) {
	tool, ok := v.cat.Get(c.Name)
	if !ok {
		return catalog.Tool{}, &Error{Kind: KindSchema, Call: c.Name, Reason: "tool not in catalog"}
	}

	for _, req := range tool.RequiredArgs() {
		if _, present := c.Arguments[req]; !present {
			return catalog.Tool{}, &Error{Kind: KindSchema, Call: c.Name, Reason: "missing required argument " + req}
		}
	}

	undeclared := 0
	for name, value := range c.Arguments {
		prop, declared := tool.Parameters.Properties[name]
		if !declared {
			undeclared++
			continue
		}
		if !typeMatches(prop.Type, value) {
			return catalog.Tool{}, &Error{
				Kind: KindSchema, Call: c.Name,
				Reason: fmt.Sprintf("argument %s is not a %s", name, prop.Type),
			}
		}
	}
	if len(c.Arguments) > 0 {
		if frac := float64(undeclared) / float64(len(c.Arguments)); frac >= v.UndeclaredTolerance && undeclared > 0 {
			return catalog.Tool{}, &Error{
				Kind: KindSchema, Call: c.Name,
				Reason: fmt.Sprintf("%d of %d arguments undeclared in schema", undeclared, len(c.Arguments)),
			}
		}
	}

	return tool, nil
}

// Result validates a whole candidate result: every call must pass both
// stages and the call count must cover the detected intent count.
func (v *Validator) Result(calls []fncall.Call, sourceText string, minIntents int) error {
	if len(calls) < minIntents {
		return &Error{
			Kind: KindSemantic, Call: "result",
			Reason: fmt.Sprintf("%d calls for %d detected intents", len(calls), minIntents),
		}
	}
	for _, c := range calls {
		if err := v.Call(c, sourceText); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) semantic(tool catalog.Tool, c fncall.Call, sourceText string) error {
	for name, value := range c.Arguments {
		if num, isNum := asNumber(value); isNum {
			if err := v.checkNumericRange(c.Name, name, num); err != nil {
				return err
			}
		}
		if s, isStr := value.(string); isStr {
			if err := v.checkString(tool, c.Name, name, s, sourceText); err != nil {
				return err
			}
		}
	}

	if sourceText != "" {
		if err := v.checkTimeAgreement(c, sourceText); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) checkNumericRange(call, arg string, num float64) error {
	fail := func(reason string) error {
		return &Error{Kind: KindSemantic, Call: call, Reason: reason}
	}
	if num < 0 {
		return fail(fmt.Sprintf("argument %s is negative", arg))
	}
	key := strings.ToLower(arg)
	switch {
	case key == "minutes" || strings.Contains(key, "duration"):
		if num < 1 || num > 1440 {
			return fail(fmt.Sprintf("duration %v outside 1-1440 minutes", num))
		}
	case strings.Contains(key, "minute"):
		if num > 59 {
			return fail(fmt.Sprintf("minute %v outside 0-59", num))
		}
	case strings.Contains(key, "hour"):
		if num > 23 {
			return fail(fmt.Sprintf("hour %v outside 0-23", num))
		}
	}
	return nil
}

func (v *Validator) checkString(tool catalog.Tool, call, arg, value, sourceText string) error {
	fail := func(reason string) error {
		return &Error{Kind: KindSemantic, Call: call, Reason: reason}
	}
	class := catalog.ClassifyArg(arg)

	// String-typed time arguments must at least look like a time.
	if class == catalog.ArgTemporal && !timeparse.LooksLikeTime(value) {
		return fail(fmt.Sprintf("argument %s %q does not look like a time", arg, value))
	}

	if strings.Contains(strings.ToLower(arg), "title") {
		if len(strings.TrimSpace(value)) < 2 {
			return fail("title is empty or too short")
		}
		lower := strings.ToLower(value)
		for _, prefix := range fillerPrefixes {
			if strings.HasPrefix(lower, prefix) {
				return fail(fmt.Sprintf("title retains filler prefix %q", strings.TrimSpace(prefix)))
			}
		}
	}

	// Multi-word values must be grounded in the source text.
	if sourceText != "" && strings.Contains(strings.TrimSpace(value), " ") {
		if !grounded(value, sourceText, v.GroundingOverlap) {
			return fail(fmt.Sprintf("argument %s %q not grounded in request text", arg, value))
		}
	}
	return nil
}

// checkTimeAgreement compares hour/minute arguments against the first clock
// time parsed from the text. Minute values of 0 and 1 are tolerated when the
// parse disagrees; small models drop leading zeros.
func (v *Validator) checkTimeAgreement(c fncall.Call, sourceText string) error {
	clock, ok := timeparse.Extract(sourceText)
	if !ok {
		return nil
	}
	if raw, present := c.Arguments["hour"]; present {
		if hour, isNum := asNumber(raw); isNum && int(hour) != clock.Hour {
			return &Error{
				Kind: KindSemantic, Call: c.Name,
				Reason: fmt.Sprintf("hour %d disagrees with %d parsed from text", int(hour), clock.Hour),
			}
		}
	}
	if raw, present := c.Arguments["minute"]; present {
		if minute, isNum := asNumber(raw); isNum {
			m := int(minute)
			if m != clock.Minute && m != 0 && m != 1 {
				return &Error{
					Kind: KindSemantic, Call: c.Name,
					Reason: fmt.Sprintf("minute %d disagrees with %d parsed from text", m, clock.Minute),
				}
			}
		}
	}
	return nil
}

// grounded reports whether value appears in text, either as a
// case-insensitive substring or with sufficient token overlap.
func grounded(value, text string, minOverlap float64) bool {
	lv, lt := strings.ToLower(value), strings.ToLower(text)
	if strings.Contains(lt, lv) {
		return true
	}
	tokens := strings.Fields(lv)
	if len(tokens) == 0 {
		return false
	}
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(lt, tok) {
			hits++
		}
	}
	return float64(hits)/float64(len(tokens)) >= minOverlap
}

func typeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		num, ok := asNumber(value)
		return ok && num == math.Trunc(num)
	case "number":
		_, ok := asNumber(value)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
