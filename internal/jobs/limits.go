package jobs

// Concurrent-job pool bounds (transcode.concurrent_jobs ∈ [1,8]).
const (
	MinConcurrentJobs = 1
	MaxConcurrentJobs = 8
)

// VMAF analysis concurrency bounds; independent of concurrent_jobs since
// VMAF scoring is CPU-bound and cannot be hardware accelerated.
const (
	MinConcurrentAnalyses = 1
	MaxConcurrentAnalyses = 3
)

// ClampConcurrentJobs keeps the scheduler pool size within valid bounds.
func ClampConcurrentJobs(n int) int {
	if n < MinConcurrentJobs {
		return MinConcurrentJobs
	}
	if n > MaxConcurrentJobs {
		return MaxConcurrentJobs
	}
	return n
}

// ClampAnalysisCount keeps the VMAF analysis concurrency within valid bounds.
func ClampAnalysisCount(n int) int {
	if n < MinConcurrentAnalyses {
		return MinConcurrentAnalyses
	}
	if n > MaxConcurrentAnalyses {
		return MaxConcurrentAnalyses
	}
	return n
}
