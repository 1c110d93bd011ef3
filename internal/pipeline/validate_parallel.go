package pipeline

import (
	"sync"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/sqlvalidate"
)

// validateParallel runs sqlvalidate.Validate over files with a bounded
// fan-out (spec §5, "per-file SQL validation with the same degree"). Each
// file validates independently, so results are merged back in the input
// file order regardless of completion order, keeping the summary
// deterministic.
func validateParallel(files []sqlvalidate.File, degree int) sqlvalidate.Summary {
	if degree <= 0 || degree > len(files) {
		degree = len(files)
	}
	if degree < 1 {
		degree = 1
	}

	perFile := make([]sqlvalidate.Summary, len(files))
	sem := make(chan struct{}, degree)
	var wg sync.WaitGroup

	for i, f := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, f sqlvalidate.File) {
			defer wg.Done()
			defer func() { <-sem }()
			perFile[i] = sqlvalidate.Validate([]sqlvalidate.File{f})
		}(i, f)
	}
	wg.Wait()

	var total sqlvalidate.Summary
	total.TotalFiles = len(files)
	for _, s := range perFile {
		total.ErrorCount += s.ErrorCount
		total.WarningCount += s.WarningCount
		total.Errors = append(total.Errors, s.Errors...)
	}
	return total
}
