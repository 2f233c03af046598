/*
Package workers sizes worker pools from the CPUs actually available to the
process.

runtime.NumCPU reports host CPUs, while GOMAXPROCS follows the container's
cgroup CPU limit. A pod limited to 2 cores on a 64-core node should not start
64 decoders:

	n := workers.ForMixed(16) // 3 on a 2-CPU container, capped at 16

Set PREVIEW_WORKERS to pin the count explicitly; the limit still applies.
*/
package workers
