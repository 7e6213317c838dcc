// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package common

import (
	"fmt"

	"github.com/katzenpost/onionsim/config"
)

// LoadConfig loads the config file f, or the defaults when f is empty.
func LoadConfig(f string) (*config.Config, error) {
	if f == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFile(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%v': %v", f, err)
	}
	return cfg, nil
}
