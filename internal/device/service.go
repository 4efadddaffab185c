package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/areuok/server/internal/apperr"
	"github.com/areuok/server/internal/model"
	"github.com/areuok/server/internal/repo"
	"github.com/google/uuid"
)

// nameChangeCooldown is the minimum age of the previous rename before a
// device name may change again
const nameChangeCooldown = 15 * 24 * time.Hour

// searchLimit caps name-search results
const searchLimit = 20

// Service handles device registration and profile reads/updates. It emits
// no events; only sign-ins do.
type Service struct {
	devices repo.DeviceRepo

	now func() time.Time
}

// NewService creates a device service
func NewService(devices repo.DeviceRepo) *Service {
	return &Service{devices: devices, now: time.Now}
}

// Register creates a device with a unique name. Registering an IMEI that is
// already known returns the existing device unchanged, so devices can
// re-register after app reinstalls.
func (s *Service) Register(ctx context.Context, deviceName string, imei *string, mode model.DeviceMode) (model.Device, error) {
	taken, err := s.devices.NameTaken(ctx, deviceName, uuid.Nil)
	if err != nil {
		return model.Device{}, apperr.Internal(err)
	}
	if taken {
		return model.Device{}, apperr.BadRequest("Device name already exists")
	}

	if imei != nil && *imei != "" {
		existing, err := s.devices.GetByIMEI(ctx, *imei)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return model.Device{}, apperr.Internal(err)
		}
	}

	device, err := s.devices.Create(ctx, deviceName, imei, mode)
	if err != nil {
		return model.Device{}, apperr.Internal(err)
	}
	return device, nil
}

// Get fetches a device by id
func (s *Service) Get(ctx context.Context, id uuid.UUID) (model.Device, error) {
	device, err := s.devices.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Device{}, apperr.NotFound("Device not found")
		}
		return model.Device{}, apperr.Internal(err)
	}
	return device, nil
}

// UpdateName renames a device. Names stay unique across devices and renames
// are limited to one per 15 days.
func (s *Service) UpdateName(ctx context.Context, id uuid.UUID, deviceName string) (model.Device, error) {
	current, err := s.devices.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Device{}, apperr.NotFound("Device not found")
		}
		return model.Device{}, apperr.Internal(err)
	}

	taken, err := s.devices.NameTaken(ctx, deviceName, id)
	if err != nil {
		return model.Device{}, apperr.Internal(err)
	}
	if taken {
		return model.Device{}, apperr.BadRequest("Device name already exists")
	}

	if current.LastNameUpdatedAt != nil {
		sinceUpdate := s.now().Sub(*current.LastNameUpdatedAt)
		if sinceUpdate < nameChangeCooldown {
			days := int(sinceUpdate.Hours() / 24)
			return model.Device{}, apperr.BadRequest(fmt.Sprintf(
				"Device name cannot be updated. Last updated %d days ago. Minimum 15 days required.", days))
		}
	}

	device, err := s.devices.UpdateName(ctx, id, deviceName)
	if err != nil {
		return model.Device{}, apperr.Internal(err)
	}
	return device, nil
}

// Search finds devices by partial name. Queries shorter than two characters
// return an empty result instead of scanning everything.
func (s *Service) Search(ctx context.Context, query string) ([]model.Device, error) {
	if len(query) < 2 {
		return []model.Device{}, nil
	}
	devices, err := s.devices.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return devices, nil
}
