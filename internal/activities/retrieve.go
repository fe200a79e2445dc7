package activities

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/socraticlabs/tutor-orchestrator/internal/debate"
	ometrics "github.com/socraticlabs/tutor-orchestrator/internal/metrics"
	"github.com/socraticlabs/tutor-orchestrator/internal/vectordb"
)

// ExecuteRetrieval fetches scored course-material chunks for the query.
// Failures are absorbed into the output so the debate can proceed without
// context; an empty result set is reported as quality 0.0, never an error.
func (a *Activities) ExecuteRetrieval(ctx context.Context, in RetrievalInput) (RetrievalOutput, error) {
	start := time.Now()
	out := RetrievalOutput{Strategy: debate.RetrievalInitial}

	topK := in.TopK
	if topK <= 0 {
		topK = a.cfg.Retrieval.TopK
	}

	results, err := a.searchOnce(ctx, in.CourseID, in.Query, topK)
	if err != nil {
		a.logger.Warn("Retrieval failed, proceeding without context",
			zap.String("course_id", in.CourseID),
			zap.Error(err),
		)
		out.ErrorMessage = err.Error()
		out.ProcessingTime = time.Since(start).Seconds()
		return out, nil
	}

	out.Results = results
	out.QualityScore = meanScore(results)
	out.Success = true

	// Low-quality results trigger speculative reframing: ask the LLM for
	// alternative phrasings, search each, and merge the best chunks.
	if out.QualityScore < a.cfg.Retrieval.QualityFloor && a.cfg.Retrieval.MaxSpeculative > 0 && a.llm != nil {
		specQueries := a.speculativeQueries(ctx, in.Query, a.cfg.Retrieval.MaxSpeculative)
		merged := out.Results
		for _, q := range specQueries {
			ometrics.SpeculativeQueries.Inc()
			extra, serr := a.searchOnce(ctx, in.CourseID, q, topK)
			if serr != nil {
				a.logger.Debug("Speculative search failed", zap.String("query", q), zap.Error(serr))
				continue
			}
			merged = mergeResults(merged, extra)
		}
		if len(specQueries) > 0 {
			out.SpeculativeQueries = specQueries
			if len(merged) > len(out.Results) {
				out.Strategy = debate.RetrievalExpanded
			} else {
				out.Strategy = debate.RetrievalSpeculative
			}
			if len(merged) > topK {
				merged = merged[:topK]
			}
			out.Results = merged
			out.QualityScore = meanScore(merged)
		}
	}

	ometrics.RetrievalQuality.Observe(out.QualityScore)
	out.ProcessingTime = time.Since(start).Seconds()

	a.logger.Info("Retrieval completed",
		zap.String("course_id", in.CourseID),
		zap.Int("results", len(out.Results)),
		zap.Float64("quality", out.QualityScore),
		zap.String("strategy", string(out.Strategy)),
	)
	return out, nil
}

// searchOnce embeds one query and runs one vector search, returning results
// sorted by descending score.
func (a *Activities) searchOnce(ctx context.Context, courseID, query string, k int) ([]debate.RetrievalResult, error) {
	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	points, err := a.search.Search(ctx, courseID, vec, k)
	if err != nil {
		return nil, err
	}
	return toResults(points), nil
}

// speculativeQueries asks the LLM for alternative phrasings of a query that
// retrieved poorly. Any failure yields no queries; the original results stand.
func (a *Activities) speculativeQueries(ctx context.Context, query string, n int) []string {
	gen, err := a.llm.Generate(ctx, buildSpeculativePrompt(query, n), 0.7)
	if err != nil {
		a.logger.Debug("Speculative reframing failed", zap.Error(err))
		return nil
	}
	raw := extractJSON(gen.Text)
	if raw == "" {
		return nil
	}
	var queries []string
	if err := json.Unmarshal([]byte(raw), &queries); err != nil {
		return nil
	}
	out := make([]string, 0, n)
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" || strings.EqualFold(q, query) {
			continue
		}
		out = append(out, q)
		if len(out) >= n {
			break
		}
	}
	return out
}

func toResults(points []vectordb.Point) []debate.RetrievalResult {
	out := make([]debate.RetrievalResult, 0, len(points))
	for _, p := range points {
		out = append(out, debate.RetrievalResult{
			Content:  p.Content,
			Score:    p.Score,
			Source:   p.Source,
			Metadata: p.Metadata,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// mergeResults deduplicates by chunk content, keeping the best score for each
// chunk, and returns the union sorted by descending score.
func mergeResults(a, b []debate.RetrievalResult) []debate.RetrievalResult {
	best := make(map[string]debate.RetrievalResult, len(a)+len(b))
	for _, r := range a {
		best[r.Content] = r
	}
	for _, r := range b {
		if prev, ok := best[r.Content]; !ok || r.Score > prev.Score {
			best[r.Content] = r
		}
	}
	out := make([]debate.RetrievalResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func meanScore(results []debate.RetrievalResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	return sum / float64(len(results))
}
