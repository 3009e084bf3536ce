// memcache-cli is an interactive REPL against a memcached cluster, useful
// for poking at a server by hand the way the teacher's own CLI tool did
// for the meta protocol.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/colinmarc/memcache"
)

func main() {
	servers := flag.String("servers", "127.0.0.1:11211", "comma-separated list of host:port servers")
	flag.Parse()

	fmt.Println("Memcache CLI Tool")
	fmt.Println("================")
	fmt.Println("Commands: get <key>, set <key> <value> [ttl], delete <key>, multi-get <key1> <key2> ..., stats, ping, quit")
	fmt.Println()

	client := memcache.NewHashClient(memcache.HashClientConfig{
		Servers: strings.Split(*servers, ","),
	})
	defer client.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		command := strings.ToLower(parts[0])
		ctx := context.Background()

		switch command {
		case "get":
			if len(parts) != 2 {
				fmt.Println("Usage: get <key>")
				continue
			}
			handleGet(ctx, client, parts[1])

		case "set":
			if len(parts) < 3 || len(parts) > 4 {
				fmt.Println("Usage: set <key> <value> [ttl_seconds]")
				continue
			}
			var ttl int32
			if len(parts) == 4 {
				secs, err := strconv.Atoi(parts[3])
				if err != nil {
					fmt.Printf("Invalid TTL: %v\n", err)
					continue
				}
				ttl = int32(secs)
			}
			handleSet(ctx, client, parts[1], parts[2], ttl)

		case "delete", "del":
			if len(parts) != 2 {
				fmt.Println("Usage: delete <key>")
				continue
			}
			handleDelete(ctx, client, parts[1])

		case "multi-get", "mget":
			if len(parts) < 2 {
				fmt.Println("Usage: multi-get <key1> <key2> ...")
				continue
			}
			handleMultiGet(ctx, client, parts[1:])

		case "stats":
			handleStats(ctx, client)

		case "ping":
			handlePing(ctx, client)

		case "help":
			fmt.Println("Commands:")
			fmt.Println("  get <key>                 - Get a value by key")
			fmt.Println("  set <key> <value> [ttl]   - Set a key-value pair with optional TTL")
			fmt.Println("  delete <key>              - Delete a key")
			fmt.Println("  multi-get <key1> <key2>   - Get multiple keys at once")
			fmt.Println("  stats                     - Show server statistics")
			fmt.Println("  ping                      - Ping all servers")
			fmt.Println("  quit                      - Exit the CLI")

		case "quit", "exit":
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", command)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
	}
}

func handleGet(ctx context.Context, client *memcache.HashClient, key string) {
	start := time.Now()
	result, found, err := client.Get(ctx, key)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	if !found {
		fmt.Printf("Key not found (took %v)\n", duration)
		return
	}

	fmt.Printf("Value: %v (took %v)\n", result.Value, duration)
	if result.Flags != 0 {
		fmt.Printf("Flags: %d\n", result.Flags)
	}
}

func handleSet(ctx context.Context, client *memcache.HashClient, key, value string, ttl int32) {
	start := time.Now()
	status, err := client.Set(ctx, key, value, memcache.StoreOptions{Expire: ttl})
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	if !status.Stored() {
		fmt.Printf("Not stored: %s (took %v)\n", status, duration)
		return
	}

	fmt.Printf("Stored successfully (took %v)\n", duration)
}

func handleDelete(ctx context.Context, client *memcache.HashClient, key string) {
	start := time.Now()
	result, err := client.Delete(ctx, key, nil)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	if result != memcache.Deleted {
		fmt.Printf("Key not found (took %v)\n", duration)
		return
	}

	fmt.Printf("Delete successful (took %v)\n", duration)
}

func handleMultiGet(ctx context.Context, client *memcache.HashClient, keys []string) {
	start := time.Now()
	results, err := client.GetMany(ctx, keys)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}

	for _, key := range keys {
		if res, ok := results[key]; ok {
			fmt.Printf("  %s: %v\n", key, res.Value)
		} else {
			fmt.Printf("  %s: <not found>\n", key)
		}
	}

	fmt.Printf("Retrieved %d out of %d keys (took %v)\n", len(results), len(keys), duration)
}

func handleStats(ctx context.Context, client *memcache.HashClient) {
	allStats, err := client.Stats(ctx, "")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(allStats) == 0 {
		fmt.Println("No statistics available")
		return
	}

	fmt.Println("Server Statistics:")
	for addr, stats := range allStats {
		fmt.Printf("Server %s:\n", addr)
		for k, v := range stats {
			fmt.Printf("  %s: %s\n", k, v)
		}
		fmt.Println()
	}
}

func handlePing(ctx context.Context, client *memcache.HashClient) {
	start := time.Now()
	_, err := client.Version(ctx)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Ping failed: %v (took %v)\n", err, duration)
		return
	}

	fmt.Printf("Ping successful (took %v)\n", duration)
}
