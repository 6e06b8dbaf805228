package verifier

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// outputLinePattern matches the line consumers append per processed entry.
var outputLinePattern = regexp.MustCompile(`processed package (\d+)`)

// Analysis is the outcome of one pass over a directory of consumer output
// files. Missing is computed against the contiguous range [MinSeen, MaxSeen]:
// the producer emits gap-free sequence numbers, so a gap in what was seen
// means loss, not producer skipping.
type Analysis struct {
	TotalProcessed       int
	UniqueCount          int
	MinSeen              int64
	MaxSeen              int64
	Duplicates           []Duplicate
	DuplicatesByConsumer map[string]int
	Missing              []int64
	ConsumerCounts       map[string]int
	ParseWarnings        []string
}

// Duplicate is a sequence number processed more than once, with the
// consumers whose outputs contain it.
type Duplicate struct {
	SequenceNumber int64
	Count          int
	Consumers      []string
}

func (a *App) analyze() (*Analysis, error) {
	info, err := os.Stat(a.Params.OutputDir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot analyze output directory %s", a.Params.OutputDir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", a.Params.OutputDir)
	}
	files, err := filepath.Glob(filepath.Join(a.Params.OutputDir, "consumer_*.txt"))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no consumer output files found in %s", a.Params.OutputDir)
	}

	analysis := &Analysis{
		DuplicatesByConsumer: map[string]int{},
		ConsumerCounts:       map[string]int{},
	}
	occurrences := map[int64][]string{}
	for _, file := range files {
		if err := parseFile(file, occurrences, analysis); err != nil {
			return nil, err
		}
	}
	if analysis.TotalProcessed == 0 {
		return nil, errors.Errorf("no processed packages recorded in %s", a.Params.OutputDir)
	}

	aggregate(occurrences, analysis)
	return analysis, nil
}

func parseFile(path string, occurrences map[int64][]string, analysis *Analysis) error {
	consumerId := consumerIdFromFilename(path)
	analysis.ConsumerCounts[consumerId] = 0

	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	for i, line := range strings.Split(string(content), "\n") {
		if line == "" {
			continue
		}
		match := outputLinePattern.FindStringSubmatch(line)
		if match == nil {
			analysis.ParseWarnings = append(analysis.ParseWarnings,
				fmt.Sprintf("%s line %d: unrecognized line", filepath.Base(path), i+1))
			continue
		}
		sequenceNumber, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			analysis.ParseWarnings = append(analysis.ParseWarnings,
				fmt.Sprintf("%s line %d: sequence number out of range", filepath.Base(path), i+1))
			continue
		}
		occurrences[sequenceNumber] = append(occurrences[sequenceNumber], consumerId)
		analysis.ConsumerCounts[consumerId]++
		analysis.TotalProcessed++
	}
	return nil
}

func aggregate(occurrences map[int64][]string, analysis *Analysis) {
	numbers := make([]int64, 0, len(occurrences))
	for n := range occurrences {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	analysis.UniqueCount = len(numbers)
	analysis.MinSeen = numbers[0]
	analysis.MaxSeen = numbers[len(numbers)-1]

	for _, n := range numbers {
		holders := occurrences[n]
		if len(holders) <= 1 {
			continue
		}
		consumers := uniqueSorted(holders)
		analysis.Duplicates = append(analysis.Duplicates, Duplicate{
			SequenceNumber: n,
			Count:          len(holders),
			Consumers:      consumers,
		})
		for _, consumer := range consumers {
			analysis.DuplicatesByConsumer[consumer]++
		}
	}

	next := analysis.MinSeen
	for _, n := range numbers {
		for ; next < n; next++ {
			analysis.Missing = append(analysis.Missing, next)
		}
		next = n + 1
	}
}

func consumerIdFromFilename(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(strings.TrimPrefix(name, "consumer_"), ".txt")
}

func uniqueSorted(values []string) []string {
	set := map[string]bool{}
	for _, value := range values {
		set[value] = true
	}
	result := make([]string, 0, len(set))
	for value := range set {
		result = append(result, value)
	}
	sort.Strings(result)
	return result
}
