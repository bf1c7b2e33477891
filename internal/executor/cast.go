package executor

import (
	"context"
	"errors"
	"fmt"

	"magnet-playlets/internal/domain"
)

type castExecutor struct {
	caster Caster
}

func (e *castExecutor) Execute(ctx context.Context, a domain.Action, in Input) error {
	device, ok := e.resolveDevice(a, in.Settings)
	if !ok {
		return Skipf("no cast device available")
	}

	file, ok := firstPlayable(in.Files)
	if !ok {
		return errors.New("no playable file to cast")
	}
	if in.Settings.MediaBaseURL == "" {
		return errors.New("media server address is not configured")
	}

	media := CastMedia{
		URL:         StreamURL(in.Settings.MediaBaseURL, in.TorrentID, file.Index),
		ContentType: file.MimeType,
		Title:       file.Name,
	}
	if err := e.caster.Cast(ctx, device, media); err != nil {
		return fmt.Errorf("cast to %s: %w", device.Name, err)
	}
	return nil
}

// resolveDevice tries the action's device, then the configured default, then
// the first connected device. Unknown ids fall through to the next candidate.
func (e *castExecutor) resolveDevice(a domain.Action, settings domain.Settings) (domain.Device, bool) {
	var ids []string
	if a.Cast != nil && a.Cast.DeviceID != "" {
		ids = append(ids, a.Cast.DeviceID)
	}
	if settings.DefaultCastDevice != "" {
		ids = append(ids, settings.DefaultCastDevice)
	}
	for _, id := range ids {
		if d, ok := e.caster.Lookup(id); ok {
			return d, true
		}
	}
	if connected := e.caster.Connected(); len(connected) > 0 {
		return connected[0], true
	}
	return domain.Device{}, false
}
