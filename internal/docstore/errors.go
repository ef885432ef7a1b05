package docstore

import "errors"

var (
	// ErrRecordNotFound indicates no record exists for the requested device.
	ErrRecordNotFound = errors.New("device record not found")

	// ErrRecordExists indicates a record already exists for the device.
	ErrRecordExists = errors.New("device record already exists")
)
