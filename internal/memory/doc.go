// Package memory applies container-aware memory limits and decode backpressure.
//
// ConfigureFromEnv derives GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO.
// Monitor samples the heap and pauses pipeline workers above the critical
// water mark until usage falls back below the high water mark:
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	if err := monitor.Wait(ctx); err != nil {
//	    return err
//	}
package memory
