package result

// Aggregate combines per-test results into the overall status and score.
// Status is the most severe result (AC when empty). Score is
// floor(100*accepted/total), or 100 when there are no tests.
func Aggregate(results []JudgeResult) (Status, int) {
	if len(results) == 0 {
		return StatusAC, 100
	}
	status := StatusAC
	accepted := 0
	for _, r := range results {
		if r.Status == StatusAC {
			accepted++
		}
		status = Worse(status, r.Status)
	}
	return status, accepted * 100 / len(results)
}
