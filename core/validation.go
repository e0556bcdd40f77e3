// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"time"
)

// ValidateEvent validates a connector change event according to domain rules.
//
// Validation rules:
//   - Source and ExternalID must not be empty
//   - Content must not be empty unless Delete is set
//   - EventTime must be set and not in the future
//   - The ACL descriptor must be well formed (see ValidateACL)
//
// Malformed events are rejected at ingestion, not at query time.
func ValidateEvent(event *Event) error {
	if event == nil {
		return fmt.Errorf("%w: event is nil", ErrValidation)
	}
	if event.Source == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptySource)
	}
	if event.ExternalID == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyExternalID)
	}
	if event.Content == "" && !event.Delete {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyContent)
	}
	if !IsValidEventTime(event.EventTime) {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidEventTime)
	}
	if err := ValidateACL(&event.ACL); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// ValidateACL validates an ACL descriptor. A non-public ACL is allowed to
// have an empty allow list (nobody sees the document), but every listed
// identity must be complete.
func ValidateACL(acl *ACL) error {
	if acl == nil {
		return fmt.Errorf("%w: acl is nil", ErrInvalidACL)
	}
	for _, identity := range acl.Allow {
		if identity.Provider == "" || identity.ExternalID == "" {
			return fmt.Errorf("%w: incomplete identity %q", ErrInvalidACL, identity.String())
		}
	}
	return nil
}

// IsValidEventTime checks that an event time is set and not in the future.
func IsValidEventTime(ts time.Time) bool {
	return !ts.IsZero() && !ts.After(time.Now())
}
