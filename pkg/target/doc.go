// Package target loads and watches the device's declared target state.
//
// A target state document is a YAML file mapping service names to
// specifications: the container image to run, whether the service is
// optional, and the compatibility contract it must satisfy. Contracts
// are declared inline or referenced through contractFile paths relative
// to the state document; the loader hydrates references so downstream
// consumers always see inline contracts.
//
// Loading a state and resolving it:
//
//	loader := target.NewLoader(contracts.NewSchemaRegistry(), logger)
//	state, err := loader.Load(ctx, "/etc/edgewarden/state.yaml")
//	if err != nil {
//	    return err
//	}
//	resolution, err := resolver.Resolve(ctx, state.Batch())
//
// Watching for changes:
//
//	watcher := target.NewWatcher(path, loader, logger)
//	err := watcher.Start(ctx, func(state *target.State) {
//	    // trigger a new resolution
//	})
//
// Reload failures keep the last good state current, so a malformed edit
// never leaves the agent without a target.
package target
