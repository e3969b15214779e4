// Copyright (c) 2026 John Earle
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

package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/hrintake/internal/models"
)

func sampleEmployee() *models.Employee {
	emp := &models.Employee{ID: "e1", Email: "sara@x.com", IdentityRecord: models.IdentityRecord{CNIC: "42101-1234567-1"}}
	emp.Set(models.DocumentNDA, "/nda.pdf")
	return emp
}

// TestEvent_JSONShape verifies the wire field names consumers rely on.
func TestEvent_JSONShape(t *testing.T) {
	ev := DocumentsGenerated(sampleEmployee(), []models.DocumentKind{models.DocumentNDA})

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"id", "type", "employee_id", "email", "occurred_at", "data"} {
		if _, ok := got[k]; !ok {
			t.Errorf("missing key %q in %s", k, raw)
		}
	}
	docs := got["data"].(map[string]any)["documents"].(map[string]any)
	if docs["nda"] != "/nda.pdf" {
		t.Errorf("documents = %v", docs)
	}
}

// TestIdentityReconciled verifies the reconciled event payload.
func TestIdentityReconciled(t *testing.T) {
	ev := IdentityReconciled(sampleEmployee(), true, "m-1")
	if ev.Type != TypeIdentityReconciled || ev.EmployeeID != "e1" || ev.ID == "" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Data["created"] != true || ev.Data["message_id"] != "m-1" {
		t.Errorf("data = %v", ev.Data)
	}
}

// TestPublisher_Publish pushes to a real Redis when REDIS_TEST_URL is set.
func TestPublisher_Publish(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx := context.Background()
	queue := "hrintake:test:" + uuid.NewString()
	defer rdb.Del(ctx, queue)

	p := NewPublisher(rdb, queue)
	if err := p.Publish(ctx, IdentityReconciled(sampleEmployee(), false, "m-2")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	raw, err := rdb.RPop(ctx, queue).Result()
	if err != nil {
		t.Fatalf("RPop: %v", err)
	}
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != TypeIdentityReconciled || ev.Email != "sara@x.com" {
		t.Errorf("event = %+v", ev)
	}
}
