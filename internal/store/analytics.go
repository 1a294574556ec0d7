package store

import (
	"fmt"
	"slices"

	"github.com/pavelanni/reflector/internal/catalog"
	"github.com/pavelanni/reflector/internal/model"
)

// Analytics aggregates activity across every stored session. Prompt responses
// are attributed to weeks through the catalog; answers to unknown prompts
// count toward the total but not toward any week.
func (s *Store) Analytics(prompts catalog.Lookup) (model.Analytics, error) {
	var a model.Analytics
	err := s.db.QueryRow(
		`SELECT (SELECT COUNT(*) FROM sessions),
		        (SELECT COUNT(*) FROM archives),
		        (SELECT COUNT(DISTINCT user_id) FROM sessions)`,
	).Scan(&a.TotalSessions, &a.TotalArchives, &a.ActiveUsers)
	if err != nil {
		return model.Analytics{}, err
	}

	rows, err := s.db.Query(
		`SELECT prompt_id, COUNT(*) FROM turns
		 WHERE sender = 'user' AND prompt_id != '' AND response != ''
		 GROUP BY prompt_id`,
	)
	if err != nil {
		return model.Analytics{}, err
	}
	defer rows.Close()

	byWeek := make(map[int]int)
	for rows.Next() {
		var promptID string
		var n int
		if err := rows.Scan(&promptID, &n); err != nil {
			return model.Analytics{}, err
		}
		a.TotalResponses += n
		p, ok, err := prompts.Lookup(promptID)
		if err != nil {
			return model.Analytics{}, fmt.Errorf("lookup %s: %w", promptID, err)
		}
		if ok {
			byWeek[p.Week] += n
		}
	}
	if err := rows.Err(); err != nil {
		return model.Analytics{}, err
	}

	a.WeeklyStats = make([]model.WeekCount, 0, len(byWeek))
	for w, n := range byWeek {
		a.WeeklyStats = append(a.WeeklyStats, model.WeekCount{Week: w, Count: n})
	}
	slices.SortFunc(a.WeeklyStats, func(x, y model.WeekCount) int { return x.Week - y.Week })
	return a, nil
}
