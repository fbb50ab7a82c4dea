package db

import (
	"encoding/json"
	"testing"
)

func TestPoolStatsJSONShape(t *testing.T) {
	raw, err := json.Marshal(PoolStats{Total: 3, Idle: 1, Acquired: 2, Max: 10, AcquireWait: "250ms"})
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"total", "idle", "acquired", "max", "acquire_wait_total"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("missing %q in pool stats payload", key)
		}
	}
}
