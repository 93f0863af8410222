// Package async provides safe concurrent execution for background work.
//
// SafeGo runs a task in a goroutine with panic recovery and a deadline,
// detached from request cancellation so the task survives the handler
// returning. WorkerPool and Batch bound concurrency for bulk work such as
// cache invalidation fan-out.
package async
