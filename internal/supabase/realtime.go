package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"
	"neurosphere-backend/internal/models"
)

// RealtimeClient inserts lifecycle events into a table. Clients subscribe to
// inserts on that table through supabase realtime.
type RealtimeClient struct {
	client *supabase.Client
	table  string
}

func NewRealtimeClient(client *supabase.Client, table string) *RealtimeClient {
	return &RealtimeClient{
		client: client,
		table:  table,
	}
}

func (r *RealtimeClient) Publish(_ context.Context, event models.ScanEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, _, err := r.client.From(r.table).Insert(event, false, "", "minimal", "").Execute()
	if err != nil {
		return fmt.Errorf("failed to publish %s event for scan %s: %w", event.Kind, event.ScanID, err)
	}
	return nil
}
