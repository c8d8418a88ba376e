package search

import (
	"log/slog"
	"sort"
	"strings"

	lfuzzy "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/teensyrom/internal/domain"
)

// fileSource is satisfied by store.StorageCache.
type fileSource interface {
	Files() []domain.FileEntry
}

// Result is a matched file with highlight positions in its name.
type Result struct {
	File           domain.FileEntry
	MatchedIndexes []int // byte positions in File.Name
	Score          int   // lower is better
}

// FileIndex implements sahilm/fuzzy.Source over lowercase file names.
type FileIndex struct {
	files      []domain.FileEntry
	lowerNames []string
}

// String returns the lowercase name at index i (implements fuzzy.Source)
func (idx *FileIndex) String(i int) string { return idx.lowerNames[i] }

// Len returns the number of files (implements fuzzy.Source)
func (idx *FileIndex) Len() int { return len(idx.files) }

// Service searches the cached file tree.
type Service struct {
	source fileSource
	logger *slog.Logger
}

// NewService creates a new search service
func NewService(source fileSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, logger: logger}
}

// Search returns cached files matching every whitespace-separated term of
// query, best first. A term matches when it fuzzily matches the file name or
// appears in the file's path. kinds restricts results (nil = all kinds);
// limit <= 0 means no limit.
func (s *Service) Search(query string, kinds []domain.FileKind, limit int) []Result {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}

	kindSet := makeKindSet(kinds)
	idx := &FileIndex{}
	for _, f := range s.source.Files() {
		if kindSet != nil && !kindSet[f.Kind] {
			continue
		}
		lowerName := strings.ToLower(f.Name)
		if !matchesAll(terms, lowerName, strings.ToLower(f.Path)) {
			continue
		}
		idx.files = append(idx.files, f)
		idx.lowerNames = append(idx.lowerNames, lowerName)
	}
	if idx.Len() == 0 {
		s.logger.Debug("search found nothing", "query", query)
		return nil
	}

	// Highlight positions and a secondary ordering come from a subsequence
	// match of the compacted query against each name.
	fuzzyMatches := make(map[int]fuzzy.Match)
	for _, m := range fuzzy.FindFrom(strings.Join(terms, ""), idx) {
		fuzzyMatches[m.Index] = m
	}

	phrase := strings.Join(terms, " ")
	type ranked struct {
		Result
		fuzzyScore int
	}
	all := make([]ranked, idx.Len())
	for i, f := range idx.files {
		m, ok := fuzzyMatches[i]
		r := ranked{Result: Result{File: f, Score: matchScore(idx.lowerNames[i], phrase)}}
		if ok {
			r.MatchedIndexes = m.MatchedIndexes
			r.fuzzyScore = m.Score
		}
		all[i] = r
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score < all[j].Score
		}
		if all[i].fuzzyScore != all[j].fuzzyScore {
			return all[i].fuzzyScore > all[j].fuzzyScore
		}
		return all[i].File.Path < all[j].File.Path
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	results := make([]Result, len(all))
	for i, r := range all {
		results[i] = r.Result
	}
	s.logger.Debug("search complete", "query", query, "results", len(results))
	return results
}

func matchesAll(terms []string, lowerName, lowerPath string) bool {
	for _, t := range terms {
		if !lfuzzy.MatchNormalizedFold(t, lowerName) && !strings.Contains(lowerPath, t) {
			return false
		}
	}
	return true
}

// matchScore ranks a name against the query. Lower score = better match.
func matchScore(name, query string) int {
	stem := strings.TrimSuffix(name, pathExt(name))
	if stem == query || name == query {
		return 0
	}
	if strings.HasPrefix(name, query) {
		return 10
	}
	if strings.Contains(name, query) {
		return 50
	}
	return 100 + lfuzzy.LevenshteinDistance(query, stem)
}

func pathExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[i:]
	}
	return ""
}

func makeKindSet(kinds []domain.FileKind) map[domain.FileKind]bool {
	if len(kinds) == 0 {
		return nil
	}
	set := make(map[domain.FileKind]bool)
	for _, k := range kinds {
		set[k] = true
	}
	return set
}
