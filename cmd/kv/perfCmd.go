package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for rKV nodes",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfBatchSize        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "batch-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("Number of items per request of the batch test"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfBatchSize = max(viper.GetInt("batch-size"), 1)
	perfSkip = util.SplitList(viper.GetString("skip"))

	return nil
}

// perfTest is a single benchmark. setup runs before the timer is started,
// op is called in parallel with a per goroutine counter.
type perfTest struct {
	name  string
	setup func(ctx context.Context, keys []string)
	op    func(ctx context.Context, key string, counter int) error
}

// perfResult combines the go benchmark result with the latency timer of the test
type perfResult struct {
	bench  testing.BenchmarkResult
	timer  metrics.Timer
	errors metrics.Counter
}

func runPerf(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	fmt.Println("Performance testing tool for rKV nodes")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	config := util.GetClientConfig()
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	fill := func(ctx context.Context, keys []string) {
		for _, k := range keys {
			if _, _, err := rpcStore.Put(ctx, k, "test", true); err != nil {
				log.Printf("error setting key %s: %v\n", k, err)
			}
		}
	}

	tests := []perfTest{
		{
			name: "put",
			op: func(ctx context.Context, key string, _ int) error {
				_, _, err := rpcStore.Put(ctx, key, "test", true)
				return err
			},
		},
		{
			name: "put-large",
			op: func(ctx context.Context, key string, _ int) error {
				_, _, err := rpcStore.Put(ctx, key, largeValue, true)
				return err
			},
		},
		{
			name:  "get",
			setup: fill,
			op: func(ctx context.Context, key string, _ int) error {
				_, err := rpcStore.Get(ctx, key)
				return err
			},
		},
		{
			name: "get-missing",
			op: func(ctx context.Context, key string, _ int) error {
				if _, err := rpcStore.Get(ctx, key); err != nil && !store.IsNotFound(err) {
					return err
				}
				return nil
			},
		},
		{
			name:  "delete",
			setup: fill,
			op: func(ctx context.Context, key string, _ int) error {
				_, err := rpcStore.Delete(ctx, key, true)
				return err
			},
		},
		{
			name:  "range",
			setup: fill,
			op: func(ctx context.Context, _ string, _ int) error {
				_, err := rpcStore.ReadRange(ctx, store.RangeQuery{
					Start: perfKeyPrefix + "-range-",
					End:   perfKeyPrefix + "-range-~",
					Limit: 100,
				})
				return err
			},
		},
		{
			name: "batch",
			op: func(ctx context.Context, key string, counter int) error {
				items := make([]store.BatchItem, perfBatchSize)
				for i := range items {
					items[i] = store.BatchItem{Key: fmt.Sprintf("%s-%d-%d", key, counter, i), Value: "test"}
				}
				_, err := rpcStore.BatchPut(ctx, items, true)
				return err
			},
		},
		{
			name:  "mixed",
			setup: fill,
			op: func(ctx context.Context, key string, counter int) error {
				var err error
				switch counter % 3 {
				case 0:
					_, _, err = rpcStore.Put(ctx, key, "test", true)
				case 1:
					_, err = rpcStore.Get(ctx, key)
					if store.IsNotFound(err) {
						err = nil
					}
				case 2:
					_, err = rpcStore.Delete(ctx, key, true)
				}
				return err
			},
		},
	}

	registry := metrics.NewRegistry()
	results := make(map[string]perfResult, len(tests))
	names := make([]string, 0, len(tests))
	for _, test := range tests {
		names = append(names, test.name)
		if shouldSkip(test.name) {
			results[test.name] = perfResult{}
			printResult(test.name, perfResult{})
			continue
		}
		result := runPerfTest(ctx, registry, test)
		results[test.name] = result
		printResult(test.name, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, names, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// runPerfTest runs test as go benchmark and records the latency of every op
func runPerfTest(ctx context.Context, registry metrics.Registry, test perfTest) perfResult {
	timer := metrics.GetOrRegisterTimer(test.name+".latency", registry)
	errCounter := metrics.GetOrRegisterCounter(test.name+".errors", registry)
	keys := getKeys(test.name)

	bench := testing.Benchmark(func(b *testing.B) {
		if test.setup != nil {
			test.setup(ctx, keys)
		}

		// cleanup
		b.Cleanup(func() {
			for _, k := range keys {
				if _, err := rpcStore.Delete(ctx, k, true); err != nil {
					log.Printf("(%s) - error deleting key: %v\n", test.name, err)
				}
			}
		})

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				err := test.op(ctx, keys[counter%len(keys)], counter)
				timer.UpdateSince(start)
				if err != nil {
					errCounter.Inc(1)
					log.Printf("(%s) - error: %v\n", test.name, err)
				}
				counter++
			}
		})
	})

	return perfResult{bench: bench, timer: timer, errors: errCounter}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// getKeys creates the test keys of a benchmark
func getKeys(prefix string) []string {
	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}
	return keys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.timer == nil || result.bench.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p := result.timer.Percentiles([]float64{0.5, 0.99})

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s errors=%d\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(p[0]), time.Duration(p[1]), result.errors.Count())
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, names []string, results map[string]perfResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	config := util.GetClientConfig()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P99Ns", "MaxNs", "Errors", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount",
		"Threads", "LargeValueSizeKB", "KeysCount", "BatchSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, test := range names {
		result := results[test]
		record := []string{test}
		if result.timer == nil || result.bench.NsPerOp() == 0 {
			record = append(record, "0", "0s", "0", "0", "0", "0", "0", "true")
		} else {
			nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1)
			p := result.timer.Percentiles([]float64{0.5, 0.99})
			record = append(record,
				strconv.FormatFloat(nsPerOp, 'f', 0, 64),
				time.Duration(nsPerOp).String(),
				strconv.FormatFloat(1e9/nsPerOp, 'f', 0, 64),
				strconv.FormatFloat(p[0], 'f', 0, 64),
				strconv.FormatFloat(p[1], 'f', 0, 64),
				strconv.FormatInt(result.timer.Max(), 10),
				strconv.FormatInt(result.errors.Count(), 10),
				"false",
			)
		}
		record = append(record,
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfBatchSize),
		)
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %v", err)
		}
	}

	return nil
}
