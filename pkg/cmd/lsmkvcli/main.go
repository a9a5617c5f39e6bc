package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/chuyangliu/lsmkv/pkg/config"
	"github.com/chuyangliu/lsmkv/pkg/store"
	"github.com/chuyangliu/lsmkv/pkg/store/lsmtree"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Missing command.")
		printUsage()
		os.Exit(1)
	}

	getCmd := flag.NewFlagSet("get", flag.ExitOnError)
	getDir := getCmd.String("dir", "./lsmkv-data", "Base directory of the tree.")
	getConfig := getCmd.String("config", "", "Path to a YAML config file.")
	getKey := getCmd.String("key", "", "Key to get.")

	putCmd := flag.NewFlagSet("put", flag.ExitOnError)
	putDir := putCmd.String("dir", "./lsmkv-data", "Base directory of the tree.")
	putConfig := putCmd.String("config", "", "Path to a YAML config file.")
	putKey := putCmd.String("key", "", "Key to put.")
	putVal := putCmd.String("val", "", "Value to put.")

	delCmd := flag.NewFlagSet("del", flag.ExitOnError)
	delDir := delCmd.String("dir", "./lsmkv-data", "Base directory of the tree.")
	delConfig := delCmd.String("config", "", "Path to a YAML config file.")
	delKey := delCmd.String("key", "", "Key to delete.")

	rangeCmd := flag.NewFlagSet("range", flag.ExitOnError)
	rangeDir := rangeCmd.String("dir", "./lsmkv-data", "Base directory of the tree.")
	rangeConfig := rangeCmd.String("config", "", "Path to a YAML config file.")
	rangeStart := rangeCmd.String("start", "", "Start key (inclusive).")
	rangeEnd := rangeCmd.String("end", "", "End key (inclusive).")

	compactCmd := flag.NewFlagSet("compact", flag.ExitOnError)
	compactDir := compactCmd.String("dir", "./lsmkv-data", "Base directory of the tree.")
	compactConfig := compactCmd.String("config", "", "Path to a YAML config file.")

	benchCmd := flag.NewFlagSet("bench", flag.ExitOnError)
	benchDir := benchCmd.String("dir", "./lsmkv-data", "Base directory of the tree.")
	benchConfig := benchCmd.String("config", "", "Path to a YAML config file.")
	benchOps := benchCmd.Int("ops", 10000, "Number of operations to run.")

	switch os.Args[1] {
	case "get":
		getCmd.Parse(os.Args[2:])
		execGet(loadConfig(*getConfig, *getDir), *getKey)
	case "put":
		putCmd.Parse(os.Args[2:])
		execPut(loadConfig(*putConfig, *putDir), *putKey, *putVal)
	case "del":
		delCmd.Parse(os.Args[2:])
		execDel(loadConfig(*delConfig, *delDir), *delKey)
	case "range":
		rangeCmd.Parse(os.Args[2:])
		execRange(loadConfig(*rangeConfig, *rangeDir), *rangeStart, *rangeEnd)
	case "compact":
		compactCmd.Parse(os.Args[2:])
		execCompact(loadConfig(*compactConfig, *compactDir))
	case "bench":
		benchCmd.Parse(os.Args[2:])
		execBench(loadConfig(*benchConfig, *benchDir), *benchOps)
	default:
		fmt.Printf("Unrecognized command \"%v\"\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("\nUsage:")
	fmt.Printf("\n\t%v <command> [arguments]\n", os.Args[0])
	fmt.Println("\nThe commands are:")
	fmt.Println("\n\tget\tget the value associated with a key")
	fmt.Println("\tput\tput or update a key-value pair")
	fmt.Println("\tdel\tdelete a key")
	fmt.Println("\trange\tlist key-value pairs within a key range")
	fmt.Println("\tcompact\trun one compaction pass")
	fmt.Println("\tbench\trun a mixed put/get/del workload")
	fmt.Println("")
}

func loadConfig(path string, dir string) *config.Config {
	cfg := config.Default()
	if len(path) > 0 {
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Printf("Load config failed: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if len(dir) > 0 {
		cfg.RootDir = dir
	}
	return cfg
}

func openTree(cfg *config.Config) *lsmtree.Tree {
	tree, err := lsmtree.Open(cfg.ParsedLogLevel(), cfg.RootDir, cfg.Budget())
	if err != nil {
		fmt.Printf("Open tree failed: %v\n", err)
		os.Exit(1)
	}
	return tree
}

func execGet(cfg *config.Config, key string) {
	tree := openTree(cfg)
	if val, found := tree.Get(store.Key(key)); found {
		fmt.Printf("%v\n", val)
	} else {
		fmt.Printf("Key \"%v\" not found\n", key)
		os.Exit(1)
	}
}

func execPut(cfg *config.Config, key string, val string) {
	tree := openTree(cfg)
	ok, err := tree.Put(store.Key(key), store.Value(val))
	if err != nil {
		fmt.Printf("Put failed: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Println("Put rejected: buffer full")
		os.Exit(1)
	}
	if err := tree.Close(); err != nil {
		fmt.Printf("Close failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Put \"%v\" ok\n", key)
}

func execDel(cfg *config.Config, key string) {
	tree := openTree(cfg)
	ok, err := tree.Del(store.Key(key))
	if err != nil {
		fmt.Printf("Del failed: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Println("Del rejected: buffer full")
		os.Exit(1)
	}
	if err := tree.Close(); err != nil {
		fmt.Printf("Close failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Del \"%v\" ok\n", key)
}

func execRange(cfg *config.Config, start string, end string) {
	tree := openTree(cfg)
	for _, entry := range tree.Range(store.Key(start), store.Key(end)) {
		fmt.Printf("%v: %v\n", entry.Key, entry.Value)
	}
}

func execCompact(cfg *config.Config) {
	tree := openTree(cfg)
	if err := tree.MaybeCompact(); err != nil {
		fmt.Printf("Compact failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Compaction pass done")
}

func execBench(cfg *config.Config, numOps int) {
	tree := openTree(cfg)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	start := time.Now()
	for i := 0; i < numOps; i++ {
		key := store.Key(fmt.Sprintf("key%v", rng.Intn(1000000)))
		switch rng.Intn(3) {
		case 0:
			if _, err := tree.Put(key, store.Value(fmt.Sprintf("value%v", i))); err != nil {
				fmt.Printf("Bench put failed: %v\n", err)
				os.Exit(1)
			}
		case 1:
			tree.Get(key)
		case 2:
			if _, err := tree.Del(key); err != nil {
				fmt.Printf("Bench del failed: %v\n", err)
				os.Exit(1)
			}
		}
	}
	elapsed := time.Since(start)

	if err := tree.Close(); err != nil {
		fmt.Printf("Close failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Completed %v operations in %v (%.0f ops/sec)\n",
		numOps, elapsed.Round(time.Millisecond), float64(numOps)/elapsed.Seconds())
}
