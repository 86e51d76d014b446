package contextmgr

import (
	"context"
	"fmt"
	"sort"

	"github.com/forgeworks/forge/model"
)

// Stats aggregates a project's context inventory.
type Stats struct {
	TotalItems    int                       `json:"total_items"`
	TotalTokens   int                       `json:"total_tokens"`
	AverageTokens int                       `json:"average_tokens"`
	ByType        map[model.ContextType]int `json:"by_type"`
	MostUsed      []model.ContextItem       `json:"most_used"`
	RecentlyUsed  []model.ContextItem       `json:"recently_used"`
}

const statsTopN = 5

// Stats computes the aggregate view of a project's context items.
func (m *Manager) Stats(ctx context.Context, projectID string) (Stats, error) {
	items, err := m.store.ListContextItems(ctx, projectID)
	if err != nil {
		return Stats{}, fmt.Errorf("load context items: %w", err)
	}

	stats := Stats{
		TotalItems: len(items),
		ByType:     map[model.ContextType]int{},
	}
	for _, item := range items {
		stats.TotalTokens += item.Tokens
		stats.ByType[item.Type]++
	}
	if stats.TotalItems > 0 {
		stats.AverageTokens = (stats.TotalTokens + stats.TotalItems/2) / stats.TotalItems
	}

	mostUsed := make([]model.ContextItem, len(items))
	copy(mostUsed, items)
	sort.SliceStable(mostUsed, func(i, j int) bool {
		return mostUsed[i].UsageCount > mostUsed[j].UsageCount
	})
	stats.MostUsed = topN(mostUsed, statsTopN)

	var used []model.ContextItem
	for _, item := range items {
		if item.LastUsed != nil {
			used = append(used, item)
		}
	}
	sort.SliceStable(used, func(i, j int) bool {
		return used[i].LastUsed.After(*used[j].LastUsed)
	})
	stats.RecentlyUsed = topN(used, statsTopN)

	return stats, nil
}

func topN(items []model.ContextItem, n int) []model.ContextItem {
	if len(items) > n {
		items = items[:n]
	}
	return items
}
