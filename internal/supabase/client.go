// Package supabase wraps the supabase storage and postgrest APIs used for
// artifact storage and realtime scan events.
package supabase

import (
	"fmt"
	"strings"

	"github.com/supabase-community/supabase-go"
)

type Client struct {
	Supabase *supabase.Client
	BaseURL  string
}

func NewClient(supabaseURL, key string) (*Client, error) {
	baseURL := strings.TrimRight(supabaseURL, "/")
	client, err := supabase.NewClient(baseURL, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		Supabase: client,
		BaseURL:  baseURL,
	}, nil
}
