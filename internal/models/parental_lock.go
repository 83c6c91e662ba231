package models

import "time"

// ParentalLock holds the hashed PIN a guardian set for a student's device
type ParentalLock struct {
	StudentID string
	PINHash   string
	UpdatedBy string
	UpdatedAt time.Time
}
