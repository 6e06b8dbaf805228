package verifier

import (
	"fmt"
	"sort"
	"strings"
)

// render writes the analysis in a fixed order so that two runs over the same
// directory produce byte-identical reports.
func (a *App) render(analysis *Analysis) {
	fmt.Fprintf(a.Out, "Analyzed %d consumer output files in %s\n", len(analysis.ConsumerCounts), a.Params.OutputDir)
	fmt.Fprintf(a.Out, "Total processed: %d\n", analysis.TotalProcessed)
	fmt.Fprintf(a.Out, "Unique packages: %d\n", analysis.UniqueCount)
	fmt.Fprintf(a.Out, "Range seen: %d-%d\n", analysis.MinSeen, analysis.MaxSeen)

	fmt.Fprintf(a.Out, "Per-consumer counts:\n")
	for _, consumer := range sortedKeys(analysis.ConsumerCounts) {
		fmt.Fprintf(a.Out, "  %s: %d\n", consumer, analysis.ConsumerCounts[consumer])
	}

	fmt.Fprintf(a.Out, "Duplicate packages: %d\n", len(analysis.Duplicates))
	for _, duplicate := range analysis.Duplicates {
		fmt.Fprintf(a.Out, "  package %d seen %d times (consumers: %s)\n",
			duplicate.SequenceNumber, duplicate.Count, strings.Join(duplicate.Consumers, ", "))
	}
	if len(analysis.DuplicatesByConsumer) > 0 {
		fmt.Fprintf(a.Out, "Duplicates by consumer:\n")
		for _, consumer := range sortedKeys(analysis.DuplicatesByConsumer) {
			fmt.Fprintf(a.Out, "  %s: %d\n", consumer, analysis.DuplicatesByConsumer[consumer])
		}
	}

	fmt.Fprintf(a.Out, "Missing packages: %d\n", len(analysis.Missing))
	if len(analysis.Missing) > 0 {
		fmt.Fprintf(a.Out, "  %s\n", formatRanges(analysis.Missing))
	}

	fmt.Fprintf(a.Out, "Parse warnings: %d\n", len(analysis.ParseWarnings))
	if a.Params.Verbose {
		for _, warning := range analysis.ParseWarnings {
			fmt.Fprintf(a.Out, "  %s\n", warning)
		}
	}
}

// formatRanges renders sorted numbers compactly, e.g. "3, 11-100, 104".
func formatRanges(numbers []int64) string {
	parts := []string{}
	for i := 0; i < len(numbers); {
		j := i
		for j+1 < len(numbers) && numbers[j+1] == numbers[j]+1 {
			j++
		}
		if j == i {
			parts = append(parts, fmt.Sprintf("%d", numbers[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", numbers[i], numbers[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
