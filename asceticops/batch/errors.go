package batch

import "errors"

var ErrNotBatchable = errors.New("batch: operation cannot join a batch")
