// Package dns publishes addresses as Cloudflare DNS records.
package dns

import (
	"context"
	"fmt"

	"github.com/cloudflare/cloudflare-go"
	"go.uber.org/zap"
)

// Provider creates or updates a single record so that it has content.
// changed is false when the record already matched.
type Provider interface {
	Upsert(ctx context.Context, recordType, name, content string) (changed bool, err error)
}

type Cloudflare struct {
	api     *cloudflare.API
	zoneID  string
	ttl     int
	proxied bool
}

// NewCloudflare returns a provider for one zone. opts are passed to the
// cloudflare client, tests use them to point it at a local server.
func NewCloudflare(token, zoneID string, ttl int, proxied bool, opts ...cloudflare.Option) (*Cloudflare, error) {
	api, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewCloudflare: %w", err)
	}
	return &Cloudflare{api: api, zoneID: zoneID, ttl: ttl, proxied: proxied}, nil
}

func (c *Cloudflare) Upsert(ctx context.Context, recordType, name, content string) (bool, error) {
	zone := cloudflare.ZoneIdentifier(c.zoneID)

	records, _, err := c.api.ListDNSRecords(ctx, zone, cloudflare.ListDNSRecordsParams{
		Name: name,
		Type: recordType,
	})
	if err != nil {
		return false, fmt.Errorf("Upsert: list %s %s: %w", recordType, name, err)
	}

	var existing *cloudflare.DNSRecord
	for i := range records {
		if records[i].Name == name {
			existing = &records[i]
			break
		}
	}

	proxied := c.proxied
	if existing == nil {
		_, err = c.api.CreateDNSRecord(ctx, zone, cloudflare.CreateDNSRecordParams{
			Type:    recordType,
			Name:    name,
			Content: content,
			TTL:     c.ttl,
			Proxied: &proxied,
		})
		if err != nil {
			return false, fmt.Errorf("Upsert: create %s %s: %w", recordType, name, err)
		}
		zap.L().Info("created record", zap.String("type", recordType), zap.String("name", name), zap.String("content", content))
		return true, nil
	}

	if existing.Content == content {
		return false, nil
	}

	_, err = c.api.UpdateDNSRecord(ctx, zone, cloudflare.UpdateDNSRecordParams{
		ID:      existing.ID,
		Type:    recordType,
		Name:    name,
		Content: content,
		TTL:     c.ttl,
		Proxied: &proxied,
	})
	if err != nil {
		return false, fmt.Errorf("Upsert: update %s %s: %w", recordType, name, err)
	}
	zap.L().Info("updated record",
		zap.String("type", recordType),
		zap.String("name", name),
		zap.String("old", existing.Content),
		zap.String("content", content),
	)
	return true, nil
}
