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

package mailbox

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/emersion/go-imap/client"
)

// TestXOAuth2Client_Start verifies the initial response format.
func TestXOAuth2Client_Start(t *testing.T) {
	mech, ir, err := newXOAuth2Client("hr@x.com", "tok").Start()
	if err != nil {
		t.Fatal(err)
	}
	if mech != "XOAUTH2" {
		t.Errorf("mech = %q", mech)
	}
	if want := "user=hr@x.com\x01auth=Bearer tok\x01\x01"; string(ir) != want {
		t.Errorf("ir = %q, want %q", ir, want)
	}
}

// TestClient_NotConnected verifies operations fail cleanly before Connect.
func TestClient_NotConnected(t *testing.T) {
	m := New(Config{Addr: "localhost:993"})
	ctx := context.Background()

	if _, err := m.SearchUnseen(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SearchUnseen err = %v", err)
	}
	if _, err := m.Fetch(ctx, []uint32{1}, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Fetch err = %v", err)
	}
	if err := m.MarkSeen(ctx, []uint32{1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("MarkSeen err = %v", err)
	}
	if _, err := m.WaitForMail(ctx, time.Millisecond, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("WaitForMail err = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close err = %v", err)
	}
}

// TestClient_EmptyInputs verifies no-op calls do not need a session.
func TestClient_EmptyInputs(t *testing.T) {
	m := New(Config{})
	if msgs, err := m.Fetch(context.Background(), nil, true); err != nil || msgs != nil {
		t.Errorf("Fetch(nil) = %v, %v", msgs, err)
	}
	if err := m.MarkSeen(context.Background(), nil); err != nil {
		t.Errorf("MarkSeen(nil) = %v", err)
	}
}

// TestDrainMailboxUpdates verifies only mailbox updates count as new mail.
func TestDrainMailboxUpdates(t *testing.T) {
	ch := make(chan client.Update, 4)
	ch <- &client.StatusUpdate{}
	if drainMailboxUpdates(ch) {
		t.Error("status update reported as new mail")
	}
	ch <- &client.StatusUpdate{}
	ch <- &client.MailboxUpdate{}
	if !drainMailboxUpdates(ch) {
		t.Error("mailbox update not reported")
	}
	if len(ch) != 0 {
		t.Errorf("channel not drained: %d left", len(ch))
	}
}

// TestSortByUID verifies fetch results are returned in UID order.
func TestSortByUID(t *testing.T) {
	msgs := []Message{{UID: 9}, {UID: 2}, {UID: 5, Raw: []byte("x")}}
	sortByUID(msgs)
	if msgs[0].UID != 2 || msgs[1].UID != 5 || msgs[2].UID != 9 {
		t.Errorf("order = %v", msgs)
	}
	b, _ := io.ReadAll(msgs[1].Reader())
	if string(b) != "x" {
		t.Errorf("Reader = %q", b)
	}
}

// TestWakeReason_String covers the log names.
func TestWakeReason_String(t *testing.T) {
	for r, want := range map[WakeReason]string{WakeNewMail: "new_mail", WakeTimeout: "timeout", WakeInterrupt: "interrupt"} {
		if r.String() != want {
			t.Errorf("%d.String() = %q", r, r.String())
		}
	}
}
