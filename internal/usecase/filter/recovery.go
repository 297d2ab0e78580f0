package filter

import (
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/treerag/internal/domain/decision"
	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
	"github.com/kailas-cloud/treerag/internal/domain/tree"
)

const (
	criticalTermLen  = 4
	maxRecovered     = 3
	longTitleLen     = 20
	strongTitleMatch = 2
)

// DetectOverFiltering reports whether too few nodes survived and, if so,
// which filtered nodes a strict keyword rescan recovers (at most 3, in order).
func (f *Filter) DetectOverFiltering(selected, filtered []*tree.Node, query string) (bool, []*tree.Node) {
	triggered := (len(selected) == 0 && len(filtered) > 0) ||
		(len(selected) < 2 && len(filtered) > 2*len(selected))
	if !triggered {
		return false, nil
	}
	return true, rescan(filtered, query)
}

func rescan(filtered []*tree.Node, query string) []*tree.Node {
	terms := rel.Terms(query, criticalTermLen)
	if len(terms) == 0 {
		return nil
	}
	var out []*tree.Node
	for _, n := range filtered {
		if len(out) == maxRecovered {
			break
		}
		title := strings.ToLower(n.Title)
		matches := 0
		for _, t := range terms {
			if strings.Contains(title, t) {
				matches++
			}
		}
		if matches >= strongTitleMatch || (matches >= 1 && utf8.RuneCountInString(n.Title) > longTitleLen) {
			out = append(out, n)
		}
	}
	return out
}

// AdjustThreshold derives the adaptive confidence threshold from the current
// filter rate and query length. Only the first matching rule applies.
func (f *Filter) AdjustThreshold(numSelected, numTotal, queryLength int) float64 {
	base := f.cfg.ConfidenceThreshold

	filterRate := 0.0
	if numTotal > 0 {
		filterRate = 1.0 - float64(numSelected)/float64(numTotal)
	}

	switch {
	case filterRate > 0.9:
		return base - 0.15
	case filterRate > 0.7:
		return base - 0.1
	case filterRate < 0.3:
		return base + 0.1
	case queryLength < 10:
		return base + 0.1
	case queryLength > 100:
		return base - 0.05
	default:
		return base
	}
}

// Report renders the decision log of one traversal.
func (f *Filter) Report(log *decision.Log, limit int) string {
	if log == nil {
		log = decision.NewLog()
	}
	return log.Report(limit)
}
