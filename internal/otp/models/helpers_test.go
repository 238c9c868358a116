package models

import (
	"testing"

	es "keystone/pkg/eventsourcing"
)

func replayHistory(t *testing.T, into es.Aggregate, from es.Aggregate) error {
	t.Helper()
	return es.Replay(into, DecodeEvent, from.Root().PendingEvents())
}
