package bootstrap

import (
	"time"

	"binstrap/internal/data"
	apperrors "binstrap/internal/errors"
	"binstrap/internal/expose"
)

// Source says where a descriptor's artifact came from.
type Source string

const (
	SourceNone    Source = ""
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

// ExposureResult is the outcome of one exposure rule.
type ExposureResult struct {
	Name    string
	Target  expose.Target
	Outcome expose.Outcome
	Err     error
}

// Result is the outcome of one descriptor.
type Result struct {
	Descriptor Descriptor
	State      State
	Source     Source
	CachePath  string
	Bytes      int64
	Exposures  []ExposureResult
	// Err is the pipeline failure, or the joined exposure failures.
	Err      error
	Duration time.Duration
}

// Failed reports whether the descriptor did not reach DONE.
func (r Result) Failed() bool {
	return r.State != StateDone
}

// Failure is one reportable failure of a run.
type Failure struct {
	URL      string
	Exposure string
	Kind     apperrors.Kind
	Err      error
}

// Report collects every result of a run in descriptor order.
type Report struct {
	RunID      string
	Platform   string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []Result
}

// Failed reports whether any descriptor failed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Failed() {
			return true
		}
	}
	return false
}

// Succeeded counts descriptors that reached DONE.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if !res.Failed() {
			n++
		}
	}
	return n
}

// Failures flattens the failed results. Exposure failures are listed one per
// exposure.
func (r *Report) Failures() []Failure {
	var out []Failure
	for _, res := range r.Results {
		if !res.Failed() {
			continue
		}
		exposureFailed := false
		for _, exp := range res.Exposures {
			if exp.Err == nil {
				continue
			}
			exposureFailed = true
			out = append(out, Failure{
				URL:      res.Descriptor.URL,
				Exposure: exp.Name,
				Kind:     apperrors.KindOf(exp.Err),
				Err:      exp.Err,
			})
		}
		if !exposureFailed {
			out = append(out, Failure{
				URL:  res.Descriptor.URL,
				Kind: apperrors.KindOf(res.Err),
				Err:  res.Err,
			})
		}
	}
	return out
}

// Record converts the report into a ledger row.
func (r *Report) Record() data.Run {
	run := data.Run{
		ID:         r.RunID,
		Platform:   r.Platform,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Total:      len(r.Results),
		Succeeded:  r.Succeeded(),
	}
	for _, f := range r.Failures() {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		run.Failures = append(run.Failures, data.Failure{
			URL:      f.URL,
			Exposure: f.Exposure,
			Kind:     string(f.Kind),
			Message:  msg,
		})
	}
	return run
}
