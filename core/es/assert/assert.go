// Package assert provides small composable conditions for command validation.
package assert

import (
	"fmt"
	"strings"
)

type Func func() error
type CondFunc func() bool

type Cond interface {
	String() string
	Eval() bool
	Check() error
}

// Failure is returned by Check when a condition does not hold.
type Failure struct {
	Name string
}

func (f *Failure) Error() string { return f.Name }

type cond struct {
	name  string
	cond  CondFunc
	check func() error
}

func (c *cond) Check() error   { return c.check() }
func (c *cond) String() string { return c.name }
func (c *cond) Eval() bool     { return c.cond() }

func newCond(name string, condFn CondFunc) *cond {
	return &cond{name: name, cond: condFn, check: func() error {
		if !condFn() {
			return &Failure{Name: name}
		}
		return nil
	}}
}

func Not(c Cond) Cond {
	return newCond(fmt.Sprintf("[not](%s)", c.String()), func() bool { return !c.Eval() })
}
func True(v bool, name string) Cond  { return newCond(name, func() bool { return v }) }
func False(v bool, name string) Cond { return newCond(name, func() bool { return !v }) }

// Changed holds when next differs from prev.
func Changed[T comparable](prev, next T, name string) Cond {
	return newCond(name, func() bool { return prev != next })
}

// All holds when every condition holds. Check reports the first failure.
func All(cs ...Cond) Cond {
	all := newCond("all", func() bool {
		for _, c := range cs {
			if !c.Eval() {
				return false
			}
		}
		return true
	})

	all.check = func() error {
		for _, c := range cs {
			if err := c.Check(); err != nil {
				return err
			}
		}
		return nil
	}

	return all
}

// Any holds when at least one condition holds.
func Any(cs ...Cond) Cond {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.String())
	}
	return newCond(strings.Join(names, " or "), func() bool {
		for _, c := range cs {
			if c.Eval() {
				return true
			}
		}
		return false
	})
}

func Assert(cond ...Cond) Func {
	return All(cond...).Check
}
