package compliance

import (
	"math"
	"sort"

	"vesselcheck/internal/domain"
)

// Score is the compliance score: completed required items over all required items, rounded
// to a whole percent. Failed and na items count as incomplete. Nil when nothing is required.
func Score(items []domain.ChecklistItem) *int {
	var required, completed int
	for _, it := range items {
		if !it.Required {
			continue
		}
		required++
		if it.Status == domain.ItemCompleted {
			completed++
		}
	}
	return percent(completed, required)
}

// Progress is the completion progress over all items, counting completed, failed and na as
// resolved. It is a different figure from Score and must not replace it.
func Progress(items []domain.ChecklistItem) *int {
	var resolved int
	for _, it := range items {
		if it.Status.Resolved() {
			resolved++
		}
	}
	return percent(resolved, len(items))
}

func percent(n, total int) *int {
	if total == 0 {
		return nil
	}
	v := int(math.Round(100 * float64(n) / float64(total)))
	return &v
}

type CategorySummary struct {
	Category        string `json:"category"`
	Total           int    `json:"total"`
	Required        int    `json:"required"`
	Completed       int    `json:"completed"`
	Failed          int    `json:"failed"`
	NA              int    `json:"na"`
	ComplianceScore *int   `json:"compliance_score"`
	Progress        *int   `json:"progress"`
}

type Summary struct {
	ComplianceScore *int              `json:"compliance_score"`
	Progress        *int              `json:"progress"`
	Categories      []CategorySummary `json:"categories"`
}

// Summarize computes score and progress overall and per category.
func Summarize(c domain.Checklist) Summary {
	byCat := map[string][]domain.ChecklistItem{}
	for _, it := range c.Items {
		byCat[it.Category] = append(byCat[it.Category], it)
	}
	cats := make([]string, 0, len(byCat))
	for k := range byCat {
		cats = append(cats, k)
	}
	sort.Strings(cats)
	s := Summary{
		ComplianceScore: Score(c.Items),
		Progress:        Progress(c.Items),
		Categories:      make([]CategorySummary, 0, len(cats)),
	}
	for _, cat := range cats {
		items := byCat[cat]
		cs := CategorySummary{
			Category:        cat,
			Total:           len(items),
			ComplianceScore: Score(items),
			Progress:        Progress(items),
		}
		for _, it := range items {
			if it.Required {
				cs.Required++
			}
			switch it.Status {
			case domain.ItemCompleted:
				cs.Completed++
			case domain.ItemFailed:
				cs.Failed++
			case domain.ItemNA:
				cs.NA++
			}
		}
		s.Categories = append(s.Categories, cs)
	}
	return s
}
