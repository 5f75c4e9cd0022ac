package replay

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/usestring/apilearn/internal/compare"
	"github.com/usestring/apilearn/internal/correlation"
	"github.com/usestring/apilearn/internal/harlog"
)

// ChainExecutor replays a planned chain against the live service. Captured
// producer values are stale by replay time, so after each step it extracts
// the correlated fields from the live response and substitutes them into
// the remaining steps.
type ChainExecutor struct {
	orch    *Orchestrator
	graph   *correlation.Graph
	byIndex map[int]*harlog.Exchange
}

func NewChainExecutor(orch *Orchestrator, graph *correlation.Graph, exchanges []harlog.Exchange) *ChainExecutor {
	byIndex := make(map[int]*harlog.Exchange, len(exchanges))
	for i := range exchanges {
		byIndex[exchanges[i].Index] = &exchanges[i]
	}
	return &ChainExecutor{orch: orch, graph: graph, byIndex: byIndex}
}

// Run plans and executes the chain for target, returning the chain result
// and its trace. Session state and substituted values flow forward through
// the steps.
func (ce *ChainExecutor) Run(ctx context.Context, target int, sess *Session) (*ChainResult, *ExecutionTrace, error) {
	plan := correlation.PlanChainForTarget(ce.graph, target)
	calls := make([]Call, 0, len(plan))
	for _, idx := range plan {
		ex, ok := ce.byIndex[idx]
		if !ok {
			return nil, nil, fmt.Errorf("chain step %d not in capture", idx)
		}
		calls = append(calls, callFromExchange(ex))
	}

	if sess == nil {
		sess = NewSession()
	}
	trace := NewTrace()
	result := &ChainResult{}

	// substitutions maps stale captured values to live ones, growing as
	// producer steps complete.
	substitutions := make(map[string]string)

	for i, call := range calls {
		if err := ctx.Err(); err != nil {
			result.FailedStep = i + 1
			return result, trace, nil
		}

		call = substituteCall(call, substitutions)
		if i < len(calls)-1 && call.MaxBodyBytes == 0 {
			call.MaxBodyBytes = prereqBodyBudget
		}

		step := ce.orch.Execute(ctx, call, sess)
		result.Steps = append(result.Steps, step)
		trace.Record(step)
		trace.AttachDrift(ce.driftFor(plan[i], step))

		if !step.Success() {
			result.FailedStep = i + 1
			trace.Finish(result)
			return result, trace, nil
		}

		if step.IsHTML {
			HarvestHTML(sess, step.Body)
		}
		ce.collectSubstitutions(plan[i], step.Body, substitutions)
	}

	result.Success = true
	trace.Finish(result)
	return result, trace, nil
}

// driftFor compares the captured response backing a step against what the
// live service returned.
func (ce *ChainExecutor) driftFor(captureIdx int, step *StepResult) *compare.Report {
	ex := ce.byIndex[captureIdx]
	if ex == nil || step == nil {
		return nil
	}
	return compare.Diff(
		compare.Response{Status: ex.ResponseStatus, ContentType: ex.ContentType(), Body: []byte(ex.ResponseBody)},
		compare.Response{Status: step.Status, ContentType: step.ContentType, Body: []byte(step.Body)},
		nil,
	)
}

// collectSubstitutions pairs each correlated field's captured value with
// its live counterpart from this step's response.
func (ce *ChainExecutor) collectSubstitutions(producerIdx int, liveBody string, substitutions map[string]string) {
	ex := ce.byIndex[producerIdx]
	if ex == nil || !gjson.Valid(liveBody) {
		return
	}
	live := gjson.Parse(liveBody)

	for _, e := range ce.graph.Edges {
		if e.From != producerIdx {
			continue
		}
		stale := gjson.Get(ex.ResponseBody, e.Field).String()
		fresh := live.Get(e.Field).String()
		if stale != "" && fresh != "" && stale != fresh {
			substitutions[stale] = fresh
		}
	}
}

// substituteCall rewrites stale values in the call's URL, headers, and
// body. JSON bodies are edited per matching path so a substring of an
// unrelated value is never corrupted.
func substituteCall(call Call, substitutions map[string]string) Call {
	if len(substitutions) == 0 {
		return call
	}
	for stale, fresh := range substitutions {
		call.URL = strings.ReplaceAll(call.URL, stale, fresh)
		if call.HeaderOverrides != nil {
			for k, v := range call.HeaderOverrides {
				if strings.Contains(v, stale) {
					call.HeaderOverrides[k] = strings.ReplaceAll(v, stale, fresh)
				}
			}
		}
	}
	call.Body = substituteBody(call.Body, substitutions)
	return call
}

func substituteBody(body string, substitutions map[string]string) string {
	if body == "" {
		return body
	}
	if !gjson.Valid(body) {
		for stale, fresh := range substitutions {
			body = strings.ReplaceAll(body, stale, fresh)
		}
		return body
	}
	for stale, fresh := range substitutions {
		for _, path := range matchingPaths(gjson.Parse(body), "", stale) {
			if updated, err := sjson.Set(body, path, fresh); err == nil {
				body = updated
			}
		}
	}
	return body
}

// matchingPaths finds every path whose string value equals target.
func matchingPaths(v gjson.Result, prefix, target string) []string {
	var paths []string
	v.ForEach(func(key, child gjson.Result) bool {
		path := key.String()
		if prefix != "" {
			path = prefix + "." + path
		}
		switch child.Type {
		case gjson.JSON:
			paths = append(paths, matchingPaths(child, path, target)...)
		default:
			if child.String() == target {
				paths = append(paths, path)
			}
		}
		return true
	})
	return paths
}

// callFromExchange converts a captured exchange into a replayable call.
// Auth and cookie headers are intentionally dropped; the session supplies
// current ones.
func callFromExchange(ex *harlog.Exchange) Call {
	overrides := make(map[string]string)
	for _, h := range ex.RequestHeaders {
		lower := strings.ToLower(h.Name)
		if lower == "cookie" || lower == "authorization" || strings.HasPrefix(lower, ":") {
			continue
		}
		switch lower {
		case "content-type", "x-requested-with":
			overrides[lower] = h.Value
		}
	}
	return Call{
		Method:          ex.Method,
		URL:             ex.URL,
		Body:            ex.RequestBody,
		HeaderOverrides: overrides,
	}
}
