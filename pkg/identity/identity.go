/*
 * Copyright 2025 Fieldline Systems.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package identity provisions the terminal's device identifier. The
// configured identifier wins; otherwise the one persisted on the
// device is reused, and only a factory-fresh device derives a new one
// from its hardware address. The derived identifier is persisted so a
// swapped network adapter does not rename the terminal mid-event.
package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldline/tapsync/pkg/logger"
	"github.com/fieldline/tapsync/pkg/models"
	"github.com/fieldline/tapsync/pkg/storage"
)

const (
	deviceIDFileName = "device_id.txt"
	deviceIDPrefix   = "SCANNER_"

	idLockWait = time.Second
)

// Provisioner resolves and persists the device identifier.
type Provisioner struct {
	dev    *storage.Device
	logger logger.Logger

	// swapped in tests
	listInterfaces func() ([]net.Interface, error)
}

// NewProvisioner creates a Provisioner on the given device.
func NewProvisioner(dev *storage.Device, log logger.Logger) *Provisioner {
	return &Provisioner{
		dev:            dev,
		logger:         log,
		listInterfaces: net.Interfaces,
	}
}

// Provision returns the terminal's device identifier. A non-empty
// configured identifier is authoritative and is not persisted; the
// configuration file owns it. Anything else comes from, and goes back
// to, the device.
func (p *Provisioner) Provision(ctx context.Context, configured string) (string, error) {
	if configured != "" {
		if !models.ValidDeviceID(configured) {
			return "", models.ErrInvalidDeviceID
		}

		return configured, nil
	}

	if id, ok := p.readPersisted(ctx); ok {
		p.logger.Info().Str("device_id", id).Msg("Using persisted device ID")
		return id, nil
	}

	id := p.derive()

	if err := p.persist(ctx, id); err != nil {
		// The identifier still serves this boot; only its stability
		// across reboots is at risk.
		p.logger.Warn().Err(err).Str("device_id", id).Msg("Failed to persist device ID")
	}

	p.logger.Info().Str("device_id", id).Msg("Provisioned device ID")

	return id, nil
}

func (p *Provisioner) readPersisted(ctx context.Context) (string, bool) {
	release, err := p.dev.Acquire(ctx, "identityLoad", idLockWait)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Device locked while reading device ID")
		return "", false
	}
	defer release()

	raw, err := os.ReadFile(p.dev.Path(deviceIDFileName))
	if errors.Is(err, os.ErrNotExist) {
		return "", false
	}

	if err != nil {
		p.logger.Warn().Err(err).Msg("Device ID file unreadable")
		return "", false
	}

	id := strings.TrimSpace(string(raw))
	if !models.ValidDeviceID(id) {
		p.logger.Warn().Str("device_id", id).Msg("Persisted device ID malformed, regenerating")
		return "", false
	}

	return id, true
}

// derive builds SCANNER_ plus twelve uppercase hex digits from the
// first hardware address, falling back to random bytes on a host
// without one.
func (p *Provisioner) derive() string {
	if mac, ok := p.firstHardwareAddr(); ok {
		return deviceIDPrefix + strings.ToUpper(hex.EncodeToString(mac[:6]))
	}

	id := uuid.New()

	p.logger.Warn().Msg("No hardware address found, deriving device ID from random bytes")

	return deviceIDPrefix + strings.ToUpper(hex.EncodeToString(id[:6]))
}

func (p *Provisioner) firstHardwareAddr() (net.HardwareAddr, bool) {
	ifaces, err := p.listInterfaces()
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to read network interfaces")
		return nil, false
	}

	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback != 0 {
			continue
		}

		if len(ifc.HardwareAddr) >= 6 {
			return ifc.HardwareAddr, true
		}
	}

	return nil, false
}

func (p *Provisioner) persist(ctx context.Context, id string) error {
	release, err := p.dev.Acquire(ctx, "identitySave", idLockWait)
	if err != nil {
		return err
	}
	defer release()

	path := p.dev.Path(deviceIDFileName)

	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return fmt.Errorf("write device ID: %w", err)
	}

	return nil
}
