package svc

import "errors"

// ErrNoStatuses means the config resolved to an empty status list, so no
// position query could ever run.
var ErrNoStatuses = errors.New("no position statuses configured")

// ErrStorageInitFailed wraps failures while bringing up the storage layer.
var ErrStorageInitFailed = errors.New("storage initialization failed")
