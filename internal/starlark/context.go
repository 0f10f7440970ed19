package starlark

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ExecutionContext provides all globals and state for a single build script run.
type ExecutionContext struct {
	// Project is the project being evaluated
	// Accessible as: project.name, project.build_dir, project.dependencies
	Project *ProjectInfo

	// Env is the current environment string
	// Values: "prod", "dev", "staging", etc.
	Env string

	// print receives output of the Starlark print() builtin
	print func(msg string)

	// globals is the combined set of all globals for execution
	globals starlark.StringDict

	// mu protects globals during initialization
	mu sync.RWMutex
}

// ContextOption is a functional option for configuring ExecutionContext.
type ContextOption func(*ExecutionContext)

// WithPrint routes the print() builtin to fn.
func WithPrint(fn func(msg string)) ContextOption {
	return func(ctx *ExecutionContext) {
		ctx.print = fn
	}
}

// NewContext creates a new execution context with functional options.
func NewContext(project *ProjectInfo, env string, opts ...ContextOption) *ExecutionContext {
	ctx := &ExecutionContext{
		Project: project,
		Env:     env,
		print:   func(string) {},
	}

	for _, opt := range opts {
		opt(ctx)
	}

	ctx.buildGlobals()
	return ctx
}

func (ctx *ExecutionContext) buildGlobals() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.globals = Predeclared(ctx.Project, ctx.Env)
}

// Globals returns the combined globals dictionary for Starlark execution.
func (ctx *ExecutionContext) Globals() starlark.StringDict {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.globals
}

// ExecFile runs the build script at filename. src may be nil to read the file
// from disk. Cancelling ctx interrupts the script.
func (ctx *ExecutionContext) ExecFile(c context.Context, filename string, src any) (starlark.StringDict, error) {
	thread := ctx.newThread(filename)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-c.Done():
			thread.Cancel(c.Err().Error())
		case <-done:
		}
	}()

	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, filename, src, ctx.Globals())
	if err != nil {
		return nil, newScriptError(filename, err)
	}
	return globals, nil
}

// newThread creates a new Starlark thread for execution.
func (ctx *ExecutionContext) newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			ctx.print(msg)
		},
	}
}

// ScriptError represents a failure while executing a build script.
type ScriptError struct {
	File      string
	Message   string
	Backtrace string
	cause     error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

func (e *ScriptError) Unwrap() error {
	return e.cause
}

func newScriptError(file string, err error) *ScriptError {
	se := &ScriptError{File: file, Message: err.Error(), cause: err}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		se.Message = evalErr.Msg
		se.Backtrace = evalErr.Backtrace()
	}
	return se
}
