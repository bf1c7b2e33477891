// Package cast keeps the set of known cast devices and sends play requests
// to them. Devices are reported by an external discovery agent.
package cast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/executor"
)

type Registry struct {
	mu      sync.RWMutex
	devices map[string]domain.Device
	client  *http.Client
}

func NewRegistry(client *http.Client) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Registry{
		devices: make(map[string]domain.Device),
		client:  client,
	}
}

// Replace swaps the whole device set. Devices without an id are rejected.
func (r *Registry) Replace(devices []domain.Device) error {
	next := make(map[string]domain.Device, len(devices))
	for _, d := range devices {
		if d.ID == "" {
			return errors.New("device id is required")
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		next[d.ID] = d
	}
	r.mu.Lock()
	r.devices = next
	r.mu.Unlock()
	return nil
}

// List returns all devices sorted by name.
func (r *Registry) List() []domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r *Registry) Lookup(id string) (domain.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// Connected returns the connected devices in List order.
func (r *Registry) Connected() []domain.Device {
	var out []domain.Device
	for _, d := range r.List() {
		if d.Connected {
			out = append(out, d)
		}
	}
	return out
}

// Cast posts the media description to the device's control URL.
func (r *Registry) Cast(ctx context.Context, device domain.Device, media executor.CastMedia) error {
	if device.ControlURL == "" {
		return fmt.Errorf("device %s has no control url", device.Name)
	}
	body, err := json.Marshal(media)
	if err != nil {
		return fmt.Errorf("encode cast request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, device.ControlURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build cast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send cast request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("device returned HTTP %d", resp.StatusCode)
	}
	return nil
}

var _ executor.Caster = (*Registry)(nil)
