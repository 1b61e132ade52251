package result_test

import (
	"errors"
	"math/rand"
	"testing"

	"hsoj/internal/judge/result"
	appErr "hsoj/pkg/errors"
)

func TestFromRunnerCode(t *testing.T) {
	t.Parallel()
	cases := map[int]result.Status{
		0:  result.StatusAC,
		1:  result.StatusRE,
		2:  result.StatusMLE,
		3:  result.StatusTLE,
		4:  result.StatusOLE,
		5:  result.StatusJE,
		6:  result.StatusRE,
		7:  result.StatusRE,
		8:  result.StatusUE,
		42: result.StatusUE,
		-1: result.StatusUE,
	}
	for code, want := range cases {
		if got := result.FromRunnerCode(code); got != want {
			t.Fatalf("code %d: expected %s, got %s", code, want, got)
		}
	}
}

func TestSeverityOrder(t *testing.T) {
	t.Parallel()
	order := []result.Status{
		result.StatusAC, result.StatusWA, result.StatusTLE, result.StatusMLE, result.StatusOLE,
		result.StatusRE, result.StatusCE, result.StatusJE, result.StatusUE,
	}
	for i := 1; i < len(order); i++ {
		if result.Worse(order[i-1], order[i]) != order[i] || result.Worse(order[i], order[i-1]) != order[i] {
			t.Fatalf("%s should be worse than %s", order[i], order[i-1])
		}
	}
	if result.StatusPending.Valid() {
		t.Fatalf("Pending is not an engine verdict")
	}
	if result.StatusPending.String() != "Pending" || result.StatusTLE.String() != "TLE" {
		t.Fatalf("unexpected names")
	}
}

func TestAggregateScenarios(t *testing.T) {
	t.Parallel()
	status, score := result.Aggregate(nil)
	if status != result.StatusAC || score != 100 {
		t.Fatalf("empty: expected AC/100, got %s/%d", status, score)
	}

	status, score = result.Aggregate([]result.JudgeResult{
		{Status: result.StatusAC}, {Status: result.StatusAC}, {Status: result.StatusWA},
	})
	if status != result.StatusWA || score != 66 {
		t.Fatalf("expected WA/66, got %s/%d", status, score)
	}

	status, score = result.Aggregate([]result.JudgeResult{
		{Status: result.StatusTLE}, {Status: result.StatusAC}, {Status: result.StatusWA},
	})
	if status != result.StatusTLE || score != 33 {
		t.Fatalf("expected TLE/33, got %s/%d", status, score)
	}
}

func TestAggregateProperties(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 500; iter++ {
		n := rng.Intn(20) + 1
		results := make([]result.JudgeResult, n)
		worst := result.StatusAC
		accepted := 0
		for i := range results {
			s := result.Status(rng.Intn(9))
			results[i].Status = s
			if s > worst {
				worst = s
			}
			if s == result.StatusAC {
				accepted++
			}
		}
		status, score := result.Aggregate(results)
		if status != worst {
			t.Fatalf("iter %d: expected %s, got %s", iter, worst, status)
		}
		if score != (100*accepted)/n {
			t.Fatalf("iter %d: expected score %d, got %d", iter, (100*accepted)/n, score)
		}
		if !status.Valid() {
			t.Fatalf("iter %d: invalid status %d", iter, status)
		}
	}
}

func TestParseRunnerOutput(t *testing.T) {
	t.Parallel()
	r, err := result.ParseRunnerOutput(`{"result":3,"signal":9,"exit_code":0,"real_time":1003,"cpu_time":1000,"memory":2048.5}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Status != result.StatusTLE || r.Signal != 9 || r.CPUTime != 1000 || r.Memory != 2048.5 {
		t.Fatalf("unexpected result: %+v", r)
	}

	r, err = result.ParseRunnerOutput(`{"signal":0}`)
	if err != nil || r.Status != result.StatusUE {
		t.Fatalf("missing result code should map to UE, got %+v err=%v", r, err)
	}

	for _, bad := range []string{"", "  \n", "not json", `{"result":`} {
		_, err := result.ParseRunnerOutput(bad)
		if err == nil {
			t.Fatalf("expected error for %q", bad)
		}
		if !appErr.Is(err, appErr.RunnerFailed) {
			t.Fatalf("expected RunnerFailed for %q, got %v", bad, err)
		}
	}
}

func TestOutcomeBuilders(t *testing.T) {
	t.Parallel()
	ce := result.CompileFailed("syntax error")
	if ce.Status != result.StatusCE || ce.Score != 0 || len(ce.Results) != 0 || ce.Error != "syntax error" {
		t.Fatalf("unexpected CE outcome: %+v", ce)
	}
	ue := result.Errored(errors.New("judge result not found"))
	if ue.Status != result.StatusUE || ue.Score != 0 || len(ue.Results) != 0 || ue.Error != "judge result not found" {
		t.Fatalf("unexpected UE outcome: %+v", ue)
	}
	done := result.Completed([]result.JudgeResult{{Status: result.StatusAC}})
	if done.Status != result.StatusAC || done.Score != 100 || len(done.Results) != 1 {
		t.Fatalf("unexpected completed outcome: %+v", done)
	}
}
