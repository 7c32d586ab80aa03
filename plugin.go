package mtapi

// Plugin is the three-callback contract a plugin action implements (spec
// §4.5), generalized from the C plugin-action ABI
// (start_func/cancel_func/finalize_func registered via
// mtapi_ext_plugin_action_create, see
// original_source/mtapi_c/include/embb/mtapi/c/mtapi_ext.h) into a Go
// interface.
//
// OnStart must not block the calling worker for the task's full duration:
// it kicks off the task's work (a network round trip, a syscall, another
// goroutine) and returns quickly, reporting an immediate setup failure via
// its own error return. The task's actual completion is signaled later, from
// whatever goroutine finishes the work, by calling complete exactly once
// with the task's final status (nil for success). A plugin that happens to
// finish synchronously may call complete before OnStart returns; the worker
// does not care which goroutine completes it, only that it is completed
// exactly once. OnCancel requests cooperative cancellation of an in-flight
// task. OnFinalize is called once, when the owning action is deleted, after
// all its tasks have drained.
type Plugin interface {
	OnStart(task Handle, ctx *Context, complete func(status Status)) error
	OnCancel(task Handle) error
	OnFinalize(action Handle) error
}

// PluginFuncs adapts three plain functions to the Plugin interface, mirroring
// the C API's registration-by-function-pointer shape without requiring
// callers to declare a named type for every plugin action.
//
// Start receives the same complete callback OnStart does and is responsible
// for calling it; if Start is nil, OnStart completes the task successfully
// on the caller's behalf.
type PluginFuncs struct {
	Start    func(task Handle, ctx *Context, complete func(status Status)) error
	Cancel   func(task Handle) error
	Finalize func(action Handle) error
}

func (p PluginFuncs) OnStart(task Handle, ctx *Context, complete func(status Status)) error {
	if p.Start == nil {
		complete(nil)
		return nil
	}
	return p.Start(task, ctx, complete)
}

func (p PluginFuncs) OnCancel(task Handle) error {
	if p.Cancel == nil {
		return nil
	}
	return p.Cancel(task)
}

func (p PluginFuncs) OnFinalize(action Handle) error {
	if p.Finalize == nil {
		return nil
	}
	return p.Finalize(action)
}
