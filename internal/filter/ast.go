package filter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/crucible-ai/crucible/internal/events"
)

// expr is a compiled predicate node. Evaluation is total: every node
// resolves to a boolean for any event, with absent fields and
// type-incompatible comparisons evaluating to false.
type expr interface {
	eval(event *events.DaemonEvent) bool
}

// andExpr short-circuits left to right.
type andExpr struct {
	left, right expr
}

func (e *andExpr) eval(event *events.DaemonEvent) bool {
	return e.left.eval(event) && e.right.eval(event)
}

// orExpr short-circuits left to right.
type orExpr struct {
	left, right expr
}

func (e *orExpr) eval(event *events.DaemonEvent) bool {
	return e.left.eval(event) || e.right.eval(event)
}

type notExpr struct {
	inner expr
}

func (e *notExpr) eval(event *events.DaemonEvent) bool {
	return !e.inner.eval(event)
}

// cmpOp enumerates comparison operators.
type cmpOp int

const (
	cmpEq cmpOp = iota
	cmpNeq
	cmpGt
	cmpLt
	cmpGte
	cmpLte
)

// compareExpr compares a field against a literal.
type compareExpr struct {
	field fieldPath
	op    cmpOp
	lit   literal
}

func (e *compareExpr) eval(event *events.DaemonEvent) bool {
	v := e.field.resolve(event)
	switch e.op {
	case cmpEq:
		return valueEquals(v, e.lit)
	case cmpNeq:
		// Absent fields and incompatible types are false for every
		// operator, inequality included.
		if v.kind == valAbsent || !comparable(v, e.lit) {
			return false
		}
		return !valueEquals(v, e.lit)
	default:
		return valueOrdered(v, e.lit, e.op)
	}
}

// inExpr tests list membership using equality semantics per element.
type inExpr struct {
	field fieldPath
	list  []literal
}

func (e *inExpr) eval(event *events.DaemonEvent) bool {
	v := e.field.resolve(event)
	for _, lit := range e.list {
		if valueEquals(v, lit) {
			return true
		}
	}
	return false
}

// startsWithExpr tests a case-sensitive string prefix.
type startsWithExpr struct {
	field  fieldPath
	prefix string
}

func (e *startsWithExpr) eval(event *events.DaemonEvent) bool {
	v := e.field.resolve(event)
	s, ok := v.stringForm()
	if !ok {
		return false
	}
	return strings.HasPrefix(s, e.prefix)
}

// matchesExpr tests a regex compiled once at filter compile time.
type matchesExpr struct {
	field   fieldPath
	pattern *regexp.Regexp
}

func (e *matchesExpr) eval(event *events.DaemonEvent) bool {
	v := e.field.resolve(event)
	s, ok := v.stringForm()
	if !ok {
		return false
	}
	return e.pattern.MatchString(s)
}

// fieldPath is a dotted field reference such as event.metadata.env.
type fieldPath []string

func (p fieldPath) String() string {
	return strings.Join(p, ".")
}

// resolve maps a field path to its value on the event. Paths that do not
// name a populated field resolve to absent rather than failing, so the
// engine degrades gracefully over events missing optional fields.
func (p fieldPath) resolve(event *events.DaemonEvent) value {
	if len(p) < 2 || p[0] != "event" {
		return value{kind: valAbsent}
	}
	switch p[1] {
	case "type":
		if len(p) == 2 {
			if event.Kind == nil {
				return value{kind: valAbsent}
			}
			return stringValue(string(event.Kind.Category()))
		}
	case "id":
		if len(p) == 2 {
			return stringValue(event.ID.String())
		}
	case "priority":
		if len(p) == 2 {
			return value{kind: valPriority, pri: event.Priority}
		}
	case "source":
		if len(p) == 3 && p[2] == "id" {
			return stringValue(event.Source.ID)
		}
	case "metadata":
		if len(p) == 3 {
			if v, ok := event.Metadata.Field(p[2]); ok {
				return stringValue(v)
			}
		}
	}
	return value{kind: valAbsent}
}

// valueKind tags the dynamic type of a resolved field value.
type valueKind int

const (
	valAbsent valueKind = iota
	valString
	valNumber
	valPriority
)

// value is a resolved field value during evaluation.
type value struct {
	kind valueKind
	str  string
	num  float64
	pri  events.EventPriority
}

func stringValue(s string) value {
	return value{kind: valString, str: s}
}

// stringForm renders the value as a string for prefix and regex operators.
func (v value) stringForm() (string, bool) {
	switch v.kind {
	case valString:
		return v.str, true
	case valPriority:
		return v.pri.String(), true
	case valNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64), true
	default:
		return "", false
	}
}

// litKind tags literal types in the expression language.
type litKind int

const (
	litString litKind = iota
	litNumber
)

// literal is a parsed literal operand.
type literal struct {
	kind litKind
	str  string
	num  float64
}

// comparable reports whether a field value and literal can be compared at
// all under the language's typing rules.
func comparable(v value, lit literal) bool {
	switch v.kind {
	case valString:
		return lit.kind == litString
	case valNumber:
		return lit.kind == litNumber
	case valPriority:
		if lit.kind != litString {
			return false
		}
		_, err := events.ParsePriority(lit.str)
		return err == nil
	default:
		return false
	}
}

// valueEquals implements == semantics: absent or type-mismatched operands
// are unequal by definition.
func valueEquals(v value, lit literal) bool {
	switch v.kind {
	case valString:
		return lit.kind == litString && v.str == lit.str
	case valNumber:
		return lit.kind == litNumber && v.num == lit.num
	case valPriority:
		if lit.kind != litString {
			return false
		}
		p, err := events.ParsePriority(lit.str)
		if err != nil {
			return false
		}
		return v.pri == p
	default:
		return false
	}
}

// valueOrdered implements the ordering operators. Numbers order
// numerically; priorities order by urgency, so `>=` reads "at least as
// urgent as". Strings and mismatched types do not order and yield false.
func valueOrdered(v value, lit literal, op cmpOp) bool {
	switch v.kind {
	case valNumber:
		if lit.kind != litNumber {
			return false
		}
		switch op {
		case cmpGt:
			return v.num > lit.num
		case cmpLt:
			return v.num < lit.num
		case cmpGte:
			return v.num >= lit.num
		case cmpLte:
			return v.num <= lit.num
		}
	case valPriority:
		if lit.kind != litString {
			return false
		}
		p, err := events.ParsePriority(lit.str)
		if err != nil {
			return false
		}
		switch op {
		case cmpGt:
			return v.pri.MoreUrgentThan(p)
		case cmpLt:
			return p.MoreUrgentThan(v.pri)
		case cmpGte:
			return v.pri.AtLeastAsUrgentAs(p)
		case cmpLte:
			return p.AtLeastAsUrgentAs(v.pri)
		}
	}
	return false
}
