// Package listing turns a fetched page of postings into what a screen shows:
// filtered by a search term, sorted by creation date and grouped by domain.
//
// Every function is pure; inputs are never modified.
package listing

import (
	"slices"
	"strings"

	"github.com/blockedby/stagesync/internal/models"
)

// Group is the postings of one domain.
type Group struct {
	Domain string       `json:"domain"`
	Jobs   []models.Job `json:"jobs"`
}

// ViewModel is either a flat list (search active) or domain groups.
type ViewModel struct {
	Term   string           `json:"term"`
	Order  models.SortOrder `json:"order"`
	Flat   []models.Job     `json:"flat,omitempty"`
	Groups []Group          `json:"groups,omitempty"`
	Total  int              `json:"total"`
}

// Grouped reports whether the view is partitioned by domain.
func (v ViewModel) Grouped() bool {
	return v.Groups != nil
}

// ParseSortOrder maps user input to a sort order; anything but "oldest" is newest.
func ParseSortOrder(s string) models.SortOrder {
	return models.ParseSortOrder(s)
}

// Matches reports whether term occurs, case-insensitively, in any searchable
// field of job. Only the empty term matches every job; whitespace is part
// of the term.
func Matches(job models.Job, term string) bool {
	term = strings.ToLower(term)
	if term == "" {
		return true
	}
	for _, field := range job.SearchableFields() {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// Apply filters jobs by term and stable-sorts the matches by createdAt.
// Jobs with equal timestamps keep their input order for both orders.
func Apply(jobs []models.Job, term string, order models.SortOrder) []models.Job {
	out := make([]models.Job, 0, len(jobs))
	for _, j := range jobs {
		if Matches(j, term) {
			out = append(out, j)
		}
	}

	slices.SortStableFunc(out, func(a, b models.Job) int {
		c := a.CreatedAt.Compare(b.CreatedAt.Time)
		if order == models.SortOldest {
			return c
		}
		return -c
	})
	return out
}

// GroupByDomain partitions jobs by domain. Groups appear in first-seen order and keep
// the jobs in input order.
func GroupByDomain(jobs []models.Job) []Group {
	groups := make([]Group, 0)
	index := make(map[string]int)

	for _, j := range jobs {
		i, ok := index[j.Domain]
		if !ok {
			i = len(groups)
			index[j.Domain] = i
			groups = append(groups, Group{Domain: j.Domain})
		}
		groups[i].Jobs = append(groups[i].Jobs, j)
	}
	return groups
}

// Build produces the view model: flat while a search term is active,
// grouped by domain otherwise.
func Build(jobs []models.Job, term string, order models.SortOrder) ViewModel {
	sorted := Apply(jobs, term, order)

	vm := ViewModel{
		Term:  term,
		Order: order,
		Total: len(sorted),
	}
	if term != "" {
		vm.Flat = sorted
		return vm
	}
	vm.Groups = GroupByDomain(sorted)
	return vm
}
