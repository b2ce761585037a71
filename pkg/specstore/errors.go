// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package specstore

import "errors"

// ErrClientInput marks failures caused by the submitted payload itself:
// missing type, empty data. Callers translate it to a 4xx, never a crash.
var ErrClientInput = errors.New("invalid client input")

// ErrLogic marks storage states that should be impossible when the scheduler
// is the only writer: a stored spec that does not match its own id, missing
// spec pieces on recovery. They point at tampered storage or a bug.
var ErrLogic = errors.New("storage logic error")
