// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package offers

// Result is the verdict a run (or the fan-out layer aggregating several runs)
// returns for an event it was handed. The processor turns the batch-level
// verdict into a decline policy: NotReady means decline briefly and retry
// soon, Processed means nothing here is wanted for a long while.
type Result int

const (
	// Processed: the event was evaluated; unused offers can be declined long.
	Processed Result = iota
	// NotReady: the receiver could not evaluate yet; decline short and retry.
	NotReady
	// Finished: the run reached its goal and can move to uninstall.
	Finished
	// Uninstalled: the run (or the whole framework) released everything and
	// can be removed.
	Uninstalled
	// Failed: evaluation failed; treat conservatively (decline short).
	Failed
	// UnknownTask: a status update could not be routed to any run.
	UnknownTask
)

var resultNames = map[Result]string{
	Processed:   "PROCESSED",
	NotReady:    "NOT_READY",
	Finished:    "FINISHED",
	Uninstalled: "UNINSTALLED",
	Failed:      "FAILED",
	UnknownTask: "UNKNOWN_TASK",
}

func (r Result) String() string {
	if n, ok := resultNames[r]; ok {
		return n
	}
	return "UNKNOWN"
}
