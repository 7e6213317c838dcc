// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package relay

import (
	"sync"
)

// state holds the last packet observed by the relay.  Each field is nil
// until the first packet is accepted, and is overwritten by every
// subsequent one.
type state struct {
	sync.RWMutex

	lastReceivedEncryptedMessage *string
	lastReceivedDecryptedMessage *string
	lastMessageDestination       *uint32
}

func (s *state) record(encrypted, decrypted string, destination uint32) {
	s.Lock()
	defer s.Unlock()

	s.lastReceivedEncryptedMessage = &encrypted
	s.lastReceivedDecryptedMessage = &decrypted
	s.lastMessageDestination = &destination
}

func (s *state) encrypted() *string {
	s.RLock()
	defer s.RUnlock()
	return s.lastReceivedEncryptedMessage
}

func (s *state) decrypted() *string {
	s.RLock()
	defer s.RUnlock()
	return s.lastReceivedDecryptedMessage
}

func (s *state) destination() *uint32 {
	s.RLock()
	defer s.RUnlock()
	return s.lastMessageDestination
}
