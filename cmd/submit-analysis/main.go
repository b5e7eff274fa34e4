// submit-analysis creates an item, uploads its photos to the blob store and
// enqueues an analysis job for a running worker to pick up.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danbi-market/analysis-worker/config"
	"github.com/danbi-market/analysis-worker/internal/blob"
	"github.com/danbi-market/analysis-worker/internal/queue"
	"github.com/danbi-market/analysis-worker/internal/store"
	"github.com/danbi-market/analysis-worker/internal/worker"
)

func main() {
	ownerID := flag.Int64("owner", 1, "owner id for the new item")
	description := flag.String("description", "", "seller's description of the item")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-owner id] [-description text] <image-path> [image-path...]\n", os.Args[0])
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	config.LoadEnvFile()
	dbPath := os.Getenv("ANALYSIS_DB_PATH")
	if dbPath == "" {
		dbPath = "analysis.db"
	}
	blobDir := os.Getenv("BLOB_DIR")
	if blobDir == "" {
		blobDir = "blobs"
	}

	itemStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open item store: %v\n", err)
		os.Exit(1)
	}
	defer itemStore.Close()

	jobQueue, err := queue.NewSQLiteQueue(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open job queue: %v\n", err)
		os.Exit(1)
	}
	defer jobQueue.Close()

	blobs := blob.NewFSStore(blobDir)
	ctx := context.Background()

	item, err := itemStore.CreateItem(*ownerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create item: %v\n", err)
		os.Exit(1)
	}

	var pointers []string
	for i, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read image %s: %v\n", path, err)
			os.Exit(1)
		}
		pointer := fmt.Sprintf("items/%d/%d%s", item.ID, i, filepath.Ext(path))
		if err := blobs.Put(ctx, pointer, data, blob.MIMETypeForPointer(path)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to store blob: %v\n", err)
			os.Exit(1)
		}
		if _, err := itemStore.AddItemImage(item.ID, pointer); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to record image: %v\n", err)
			os.Exit(1)
		}
		pointers = append(pointers, pointer)
	}

	jobID, err := worker.NewSubmitter(jobQueue).SubmitAnalysisJob(item.ID, pointers, *description)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to submit job: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Item %d created (%s), job %s enqueued with %d image(s)\n",
		item.ID, item.Status, jobID, len(pointers))
}
