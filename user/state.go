// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package user

import (
	"sync"
)

type state struct {
	sync.RWMutex

	lastSentMessage     *string
	lastReceivedMessage *string
}

func (s *state) setSent(msg string) {
	s.Lock()
	defer s.Unlock()
	s.lastSentMessage = &msg
}

func (s *state) setReceived(msg string) {
	s.Lock()
	defer s.Unlock()
	s.lastReceivedMessage = &msg
}

func (s *state) sent() *string {
	s.RLock()
	defer s.RUnlock()
	return s.lastSentMessage
}

func (s *state) received() *string {
	s.RLock()
	defer s.RUnlock()
	return s.lastReceivedMessage
}
