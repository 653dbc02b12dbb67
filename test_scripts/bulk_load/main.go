package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/adfharrison1/go-db-bulk/pkg/api"
)

// generateRandomName generates a random 6-letter name
func generateRandomName() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	name := make([]byte, 6)
	for i := range name {
		name[i] = letters[rand.Intn(len(letters))]
	}
	name[0] = name[0] - 32
	return string(name)
}

// postBulk sends one bulk request and returns the decoded response
func postBulk(client *http.Client, url string, req api.BulkWriteRequest) (*api.BulkWriteResponse, int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var out api.BulkWriteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, resp.StatusCode, nil
}

// Usage: go run ./test_scripts/bulk_load -n 100000 -per-request 5000
func main() {
	var (
		numDocs    = flag.Int("n", 10000, "number of documents to write")
		perRequest = flag.Int("per-request", 2000, "operations per bulk request")
		serverURL  = flag.String("url", "http://localhost:8080", "go-db server URL")
		collection = flag.String("collection", "users", "target collection")
	)
	flag.Parse()

	if *numDocs <= 0 || *perRequest <= 0 || *perRequest > api.MaxBulkOperations {
		fmt.Printf("Error: -n must be positive and -per-request must be in 1..%d\n", api.MaxBulkOperations)
		os.Exit(1)
	}

	url := fmt.Sprintf("%s/collections/%s/bulk", *serverURL, *collection)
	client := &http.Client{Timeout: time.Minute}

	fmt.Printf("Starting load test: writing %d documents to %s in requests of %d\n", *numDocs, url, *perRequest)

	startTime := time.Now()
	written, requests, partial, batches := 0, 0, 0, 0

	for written < *numDocs {
		n := min(*perRequest, *numDocs-written)
		req := api.BulkWriteRequest{Operations: make([]api.BulkOperation, n)}
		for i := range req.Operations {
			name := generateRandomName()
			req.Operations[i] = api.BulkOperation{
				Op: "set",
				Data: map[string]interface{}{
					"name":  name,
					"age":   rand.Intn(82) + 18,
					"email": strings.ToLower(name) + "@example.com",
				},
			}
		}

		resp, status, err := postBulk(client, url, req)
		requests++
		if err != nil {
			fmt.Printf("Error on request %d: %v\n", requests, err)
			os.Exit(1)
		}
		if status == http.StatusMultiStatus {
			partial++
			fmt.Printf("Request %d partially failed, batches %v\n", requests, resp.FailedBatches)
		}

		batches += len(resp.Batches)
		written += n

		elapsed := time.Since(startTime)
		fmt.Printf("Progress: %d/%d documents (%.1f%%) - Rate: %.1f docs/sec\n",
			written, *numDocs, float64(written)/float64(*numDocs)*100, float64(written)/elapsed.Seconds())
	}

	totalTime := time.Since(startTime)

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("LOAD TEST COMPLETE")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Documents written:     %d\n", written)
	fmt.Printf("Bulk requests:         %d\n", requests)
	fmt.Printf("Server-side batches:   %d\n", batches)
	fmt.Printf("Partial failures:      %d\n", partial)
	fmt.Printf("Total time:            %v\n", totalTime)
	fmt.Printf("Average rate:          %.2f docs/sec\n", float64(written)/totalTime.Seconds())

	if partial > 0 {
		os.Exit(1)
	}
}
