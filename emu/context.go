package emu

import (
	"github.com/steelhorn/steelhorn/arch"
	"github.com/steelhorn/steelhorn/cpu"
)

// Context is a saved CPU state. A context is stamped with the arch and
// mode of the handle that allocated it and only restores against a
// matching one.
type Context struct {
	ctx   cpu.Context
	arch  arch.Arch
	mode  arch.Mode
	freed bool
}

// Free releases the context. Use after Free is ERR_HANDLE.
func (c *Context) Free() error {
	if c.freed {
		return cpu.ERR_HANDLE
	}
	c.freed = true
	return c.ctx.Free()
}

// ContextAlloc allocates an empty context sized for this handle.
func (e *Emu) ContextAlloc() (*Context, error) {
	if e.closed {
		return nil, cpu.ERR_HANDLE
	}
	abi, err := e.requireABI()
	if err != nil {
		return nil, err
	}
	ctx, err := e.eng.ContextAlloc()
	if err != nil {
		return nil, err
	}
	return &Context{ctx: ctx, arch: abi.Arch(), mode: abi.Mode()}, nil
}

// ContextSave captures the current CPU state into ctx.
func (e *Emu) ContextSave(ctx *Context) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	if ctx == nil || ctx.freed {
		return cpu.ERR_HANDLE
	}
	if err := e.stampCheck(ctx); err != nil {
		return err
	}
	return e.eng.ContextSave(ctx.ctx)
}

// ContextRestore applies a previously saved state.
func (e *Emu) ContextRestore(ctx *Context) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	if ctx == nil || ctx.freed {
		return cpu.ERR_HANDLE
	}
	if err := e.stampCheck(ctx); err != nil {
		return err
	}
	return e.eng.ContextRestore(ctx.ctx)
}

// ContextInit allocates a context and saves into it in one step,
// releasing the allocation if the save fails.
func (e *Emu) ContextInit() (*Context, error) {
	ctx, err := e.ContextAlloc()
	if err != nil {
		return nil, err
	}
	if err := e.ContextSave(ctx); err != nil {
		ctx.Free()
		return nil, err
	}
	return ctx, nil
}

func (e *Emu) stampCheck(ctx *Context) error {
	abi, err := e.requireABI()
	if err != nil {
		return err
	}
	if ctx.arch != abi.Arch() || ctx.mode != abi.Mode() {
		return cpu.ERR_ARG
	}
	return nil
}
