// Command export-memories is a standalone CLI that dumps every active
// memory to a timestamped JSON file, without starting the RPC servers or
// background workers. Requires DATABASE_URL in the environment.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type exportedMemory struct {
	ID        string          `json:"id"`
	Category  string          `json:"category"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func run() error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT id, content, category_path::text, metadata, created_at
		FROM memories
		WHERE supersedes_id IS NULL AND archived_at IS NULL
		ORDER BY category_path ASC
	`)
	if err != nil {
		return fmt.Errorf("querying memories: %w", err)
	}
	defer rows.Close()

	var data []exportedMemory
	for rows.Next() {
		var m exportedMemory
		var id uuid.UUID
		var rawMeta json.RawMessage
		var category string
		var content string
		var createdAt time.Time
		if err := rows.Scan(&id, &content, &category, &rawMeta, &createdAt); err != nil {
			return fmt.Errorf("scanning memory row: %w", err)
		}
		m.ID = id.String()
		m.Content = content
		m.Category = category
		m.CreatedAt = createdAt
		if len(rawMeta) == 0 {
			m.Metadata = json.RawMessage("{}")
		} else {
			m.Metadata = rawMeta
		}
		data = append(data, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading memory rows: %w", err)
	}

	filename := fmt.Sprintf("memory_export_%s.json", time.Now().Format("20060102_150405"))
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	if err := os.WriteFile(filename, encoded, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}

	fmt.Printf("Exported %d memories to %s\n", len(data), filename)
	return nil
}
