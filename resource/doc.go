// Package resource bounds concurrent use of shared hardware.
//
// A lane queue limits how much work is admitted; a resource class limits
// how much admitted work may touch one physical device at the same time.
// The two are orthogonal: two lanes may share a single accelerator, in
// which case their executors acquire the same class and never overlap.
//
//	mgr := resource.NewManager(resource.WithPermits(resource.ClassImage, 1))
//	err := mgr.Do(ctx, resource.ClassImage, func(ctx context.Context) error {
//	    return pipeline.Run(ctx, input)
//	})
//
// Handle holds a lazily loaded, swappable value such as a model pipeline
// so executors receive it by injection rather than through package state.
package resource
