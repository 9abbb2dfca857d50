package workerctx

import "strings"

// WasiConfigVars returns a snapshot of the worker's current effective
// config vars (initial vars overlaid by any update-time overrides), safe
// for the caller to range over without holding a lock.
func (c *Context) WasiConfigVars() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.wasiConfigVars))
	for k, v := range c.wasiConfigVars {
		out[k] = v
	}
	return out
}

// SetWasiConfigVars replaces the effective config vars, called after a
// component update recomputes them against the initial set (see
// effective_wasi_config_vars in durable_host/mod.rs).
func (c *Context) SetWasiConfigVars(vars map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wasiConfigVars = vars
}

// InitialWasiConfigVars returns the config vars the worker was created
// with, before any update-time recomputation.
func (c *Context) InitialWasiConfigVars() map[string]string {
	out := make(map[string]string, len(c.initialWasiConfigVars))
	for k, v := range c.initialWasiConfigVars {
		out[k] = v
	}
	return out
}

// GetFileSystemNode reports whether path is part of the worker's IFS and,
// if so, whether it is read-only.
func (c *Context) GetFileSystemNode(path string) (f IFSFile, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok = c.files[path]
	return f, ok
}

// ReadFile returns the contents of an IFS file, matching a host call's
// direct-read fast path for small read-only files.
func (c *Context) ReadFile(path string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[path]
	if !ok {
		return nil, false
	}
	return f.Content, true
}

// IsReadOnlyPath reports whether path was present in the worker's initial
// filesystem as a read-only entry, computed once up front the way
// compute_read_only_paths precomputes a HashSet for fast lookup on every
// write.
func (c *Context) IsReadOnlyPath(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.readOnlyPaths[path]
	return ok
}

// RecomputeReadOnlyPaths refreshes the read-only path cache after the IFS
// view changes (e.g. following a component update that adds or removes
// files).
func (c *Context) RecomputeReadOnlyPaths() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readOnlyPaths = computeReadOnlyPaths(c.files)
}

// SetFile installs or overwrites an IFS file.
func (c *Context) SetFile(path string, f IFSFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[path] = f
}

// ListFilesUnder returns every IFS path with the given prefix, used to
// implement directory listing over the flat file map.
func (c *Context) ListFilesUnder(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for path := range c.files {
		if strings.HasPrefix(path, prefix) {
			out = append(out, path)
		}
	}
	return out
}
