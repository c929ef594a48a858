package mapcmd

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dmap-io/dmap/cmd/util"
	"github.com/dmap-io/dmap/rpc/common"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dmap servers",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

// perfResult combines the throughput numbers of a benchmark run with the
// latency distribution recorded during it
type perfResult struct {
	bench testing.BenchmarkResult
	timer gometrics.Timer
}

func init() {
	// add flags
	key := "skip"
	MapCommands.PersistentFlags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	MapCommands.PersistentFlags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	MapCommands.PersistentFlags().Int(key, 1000, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	MapCommands.PersistentFlags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for dmap servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]perfResult)

	// runBench runs one named benchmark and records per-op latencies in a timer
	runBench := func(name string, prepare func(iter func(func(string))), op func(getKey func(int) string, counter int) error) {
		timer := gometrics.NewCustomTimer(
			gometrics.NewHistogram(gometrics.NewExpDecaySample(1028, 0.015)),
			gometrics.NewMeter(),
		)

		bench := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(name) {
				return
			}

			// prepare keys
			getKey, iter := getKeys(name)

			if prepare != nil {
				prepare(iter)
			}

			// cleanup
			b.Cleanup(func() {
				iter(func(k string) {
					if _, err := rpcMap.Remove(k); err != nil {
						log.Printf("(%s) - error removing key: %v\n", name, err)
					}
				})
			})

			b.SetParallelism(perfNumThreads)

			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					start := time.Now()
					if err := op(getKey, counter); err != nil {
						log.Printf("(%s) - error: %v\n", name, err)
					}
					timer.UpdateSince(start)
					counter++
				}
			})
		})

		result := perfResult{bench: bench, timer: timer}
		results[name] = result
		printResult(name, result)
	}

	// seedKeys writes a value for every test key before the benchmark runs
	seedKeys := func(iter func(func(string))) {
		iter(func(k string) {
			if _, err := rpcMap.Put(k, []byte("test")); err != nil {
				log.Printf("error seeding key: %v\n", err)
			}
		})
	}

	runBench("put", nil, func(getKey func(int) string, counter int) error {
		_, err := rpcMap.Put(getKey(counter), []byte("test"))
		return err
	})

	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	runBench("put-large", nil, func(getKey func(int) string, counter int) error {
		_, err := rpcMap.Put(getKey(counter), largeValue)
		return err
	})

	runBench("get", seedKeys, func(getKey func(int) string, counter int) error {
		_, _, err := rpcMap.Get(getKey(counter))
		return err
	})

	runBench("remove", seedKeys, func(getKey func(int) string, counter int) error {
		_, err := rpcMap.Remove(getKey(counter))
		return err
	})

	runBench("containsKey", seedKeys, func(getKey func(int) string, counter int) error {
		_, err := rpcMap.ContainsKey(getKey(counter))
		return err
	})

	runBench("containsKey-not", nil, func(getKey func(int) string, counter int) error {
		key := fmt.Sprintf("%s/not-%d", perfKeyPrefix, counter%100)
		_, err := rpcMap.ContainsKey(key)
		return err
	})

	runBench("cas", seedKeys, func(getKey func(int) string, counter int) error {
		key := getKey(counter)
		value, _, err := rpcMap.Get(key)
		if err != nil {
			return err
		}
		_, err = rpcMap.ReplaceVersion(key, value.Version, []byte("test"))
		return err
	})

	runBench("mixed", seedKeys, func(getKey func(int) string, counter int) error {
		key := getKey(counter)
		var err error
		switch counter % 4 {
		case 0: // put
			_, err = rpcMap.Put(key, []byte("test"))
		case 1: // get
			_, _, err = rpcMap.Get(key)
		case 2: // remove
			_, err = rpcMap.Remove(key)
		case 3: // containsKey
			_, err = rpcMap.ContainsKey(key)
		}
		return err
	})

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.bench.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Latency percentiles recorded during the run
	ps := result.timer.Percentiles([]float64{0.5, 0.95, 0.99})

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p95=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50", "P95", "P99", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.bench.NsPerOp() == 0 {
			skipped = "true"
			nsPerOp = 0
			opsPerSec = 0
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.bench.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		ps := result.timer.Percentiles([]float64{0.5, 0.95, 0.99})

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			time.Duration(ps[0]).String(),
			time.Duration(ps[1]).String(),
			time.Duration(ps[2]).String(),
			skipped,
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
