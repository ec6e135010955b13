package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/NuvandaPV/instant/internal/idgen"
)

func newTestDistributor() *Distributor {
	return NewDistributor(NewRoomGroup(), idgen.New())
}

func newTestClient(d *Distributor) *Client {
	id := d.NextConnectionID()
	return NewClient(id, nil, nil, "", "", "", "")
}

func drain(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case payload := <-c.SendQueue():
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Envelope{}
	}
}

func TestJoinCreatesRoomAndEmitsPresence(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)
	b := newTestClient(d)

	room := d.Join(a, "lobby")
	if room.Name != "lobby" {
		t.Fatalf("room name = %q", room.Name)
	}

	d.Join(b, "lobby")
	env := drain(t, a)
	if env.Type != "joined" {
		t.Fatalf("type = %q, want joined", env.Type)
	}
}

func TestJoinIsIdempotentForSameRoom(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)

	d.Join(a, "lobby")
	// "joined" is broadcast to the room after a has been inserted, so
	// the first join notifies a itself; drain that event.
	drainOrNone(a)

	before := d.Group()
	room1, _ := before.Lookup("lobby")

	d.Join(a, "lobby") // no-op: already a member
	select {
	case <-a.SendQueue():
		t.Fatal("unexpected presence event on idempotent re-join")
	case <-time.After(50 * time.Millisecond):
	}

	room2, _ := before.Lookup("lobby")
	if room1 != room2 {
		t.Fatal("room identity changed across idempotent join")
	}
}

func drainOrNone(c *Client) {
	select {
	case <-c.SendQueue():
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLeaveDestroysEmptyRoomAndRecreatesOnRejoin(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)

	room1 := d.Join(a, "lobby")
	d.Leave(a)

	if _, ok := d.Group().Lookup("lobby"); ok {
		t.Fatal("expected room to be gone after last member left")
	}

	room2 := d.Join(a, "lobby")
	if room1 == room2 {
		t.Fatal("expected a fresh room instance after recreation")
	}
	if !room2.CreatedAt.After(room1.CreatedAt) && room2.CreatedAt != room1.CreatedAt {
		// CreatedAt should differ (property 6); allow equal only if
		// the clock has coarse resolution, but they must not be the
		// same Room value, already checked above.
		_ = room2.CreatedAt
	}
}

func TestBroadcastFanOutIdenticalBytesExceptSenderEcho(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)
	b := newTestClient(d)
	room := d.Join(a, "x")
	d.Join(b, "x")
	drainOrNone(a) // a's own "joined"
	drainOrNone(a) // "joined" for b
	drainOrNone(b) // b's own "joined"

	seq := json.Number("1")
	if _, err := d.SendBroadcast(room, []byte(`{"text":"hi"}`), uidOf(a), a, &seq, false); err != nil {
		t.Fatalf("SendBroadcast: %v", err)
	}

	envA := drain(t, a)
	envB := drain(t, b)

	if envA.Seq == nil || *envA.Seq != seq {
		t.Fatalf("sender envelope seq = %v, want %v", envA.Seq, seq)
	}
	if envB.Seq != nil {
		t.Fatalf("non-sender envelope seq = %v, want nil", envB.Seq)
	}
	if envA.ID != envB.ID || envA.From != envB.From || envA.Timestamp != envB.Timestamp {
		t.Fatalf("sender/non-sender envelopes disagree on id/from/timestamp")
	}
	if string(envA.Data) != string(envB.Data) {
		t.Fatalf("data differs between sender and non-sender copies")
	}
}

func TestBroadcastExcludeSelf(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)
	b := newTestClient(d)
	room := d.Join(a, "x")
	d.Join(b, "x")
	drainOrNone(a) // a's own "joined"
	drainOrNone(a) // "joined" for b
	drainOrNone(b)

	if _, err := d.SendBroadcast(room, []byte(`{}`), uidOf(a), a, nil, true); err != nil {
		t.Fatalf("SendBroadcast: %v", err)
	}

	select {
	case <-a.SendQueue():
		t.Fatal("sender should not receive its own excluded broadcast")
	case <-time.After(50 * time.Millisecond):
	}
	drain(t, b)
}

func TestBroadcastOnNullRoomFails(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)
	null := d.Join(a, "")
	if !null.IsNull() {
		t.Fatal("expected null room")
	}
	if _, err := d.SendBroadcast(null, []byte(`{}`), uidOf(a), a, nil, false); err != ErrNoSuchRoom {
		t.Fatalf("err = %v, want ErrNoSuchRoom", err)
	}
}

func TestUnicastMissReportsNoSuchMember(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)
	d.Join(a, "x")
	drainOrNone(a) // a's own "joined"

	seq := json.Number("7")
	d.Dispatch(a, []byte(`{"type":"unicast","to":"999999","seq":7,"data":{}}`))

	env := drain(t, a)
	if env.Type != "error" {
		t.Fatalf("type = %q, want error", env.Type)
	}
	var data errorData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.Reason != "no-such-member" {
		t.Fatalf("reason = %q, want no-such-member", data.Reason)
	}
	if env.Seq == nil || *env.Seq != seq {
		t.Fatalf("seq = %v, want %v", env.Seq, seq)
	}
}

func TestUnicastDeliversToTarget(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)
	b := newTestClient(d)
	d.Join(a, "x")
	d.Join(b, "x")
	drainOrNone(a) // a's own "joined"
	drainOrNone(a) // "joined" for b
	drainOrNone(b)

	msg := []byte(`{"type":"unicast","to":"` + uidOf(b) + `","seq":3,"data":{"hello":"b"}}`)
	d.Dispatch(a, msg)

	env := drain(t, b)
	if env.Type != "unicast" || env.From != uidOf(a) {
		t.Fatalf("envelope = %+v", env)
	}
	select {
	case <-a.SendQueue():
		t.Fatal("sender should not receive a copy of a unicast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPingRepliesPongWithSameSeq(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)
	d.Join(a, "x")
	drainOrNone(a) // a's own "joined"

	d.Dispatch(a, []byte(`{"type":"ping","seq":42}`))
	env := drain(t, a)
	if env.Type != "pong" {
		t.Fatalf("type = %q, want pong", env.Type)
	}
	if env.Seq == nil || env.Seq.String() != "42" {
		t.Fatalf("seq = %v, want 42", env.Seq)
	}
}

func TestUnknownTypeRepliesError(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)
	d.Join(a, "x")
	drainOrNone(a) // a's own "joined"

	d.Dispatch(a, []byte(`{"type":"frobnicate","seq":1}`))
	env := drain(t, a)
	var data errorData
	json.Unmarshal(env.Data, &data)
	if data.Reason != "unknown-type" {
		t.Fatalf("reason = %q, want unknown-type", data.Reason)
	}
}

func TestMalformedFrameRepliesError(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)
	d.Join(a, "x")
	drainOrNone(a) // a's own "joined"

	d.Dispatch(a, []byte(`not json`))
	env := drain(t, a)
	if env.Type != "error" {
		t.Fatalf("type = %q, want error", env.Type)
	}
}

func TestWhoReturnsRoomSnapshot(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)
	b := newTestClient(d)
	d.Join(a, "x")
	d.Join(b, "x")
	drainOrNone(a) // a's own "joined"
	drainOrNone(a) // "joined" for b
	drainOrNone(b)

	d.Dispatch(a, []byte(`{"type":"who","seq":1}`))
	env := drain(t, a)
	var members []Member
	if err := json.Unmarshal(env.Data, &members); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("len(members) = %d, want 2", len(members))
	}
}

func TestNickUpdatesAndBroadcastsPresence(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)
	b := newTestClient(d)
	d.Join(a, "x")
	d.Join(b, "x")
	drainOrNone(a)
	drainOrNone(b)

	d.Dispatch(a, []byte(`{"type":"nick","seq":1,"data":{"nick":"alice"}}`))
	if a.Nick() != "alice" {
		t.Fatalf("Nick() = %q, want alice", a.Nick())
	}

	env := drain(t, b)
	if env.Type != "nick" {
		t.Fatalf("type = %q, want nick", env.Type)
	}
}

func TestMoveEmitsLeaveThenJoinPresence(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)
	b := newTestClient(d)
	c := newTestClient(d)
	d.Join(a, "room1")
	d.Join(b, "room1")
	d.Join(c, "room2")
	drainOrNone(a)
	drainOrNone(b)
	drainOrNone(c)

	d.Move(a, "room2")

	leftEnv := drain(t, b)
	if leftEnv.Type != "left" {
		t.Fatalf("type = %q, want left", leftEnv.Type)
	}
	joinedEnv := drain(t, c)
	if joinedEnv.Type != "joined" {
		t.Fatalf("type = %q, want joined", joinedEnv.Type)
	}
}

func TestQueueOverflowClosesClientAndRemovesFromRoom(t *testing.T) {
	d := newTestDistributor()
	a := newTestClient(d)
	b := newTestClient(d)
	room := d.Join(a, "x")
	d.Join(b, "x")
	drainOrNone(a)
	drainOrNone(b)

	// Fill b's queue without draining it.
	for i := 0; i < sendQueueSize+1; i++ {
		d.SendBroadcast(room, []byte(`{}`), uidOf(a), a, nil, true)
	}

	select {
	case <-b.Closed():
	case <-time.After(time.Second):
		t.Fatal("expected b to be closed after queue overflow")
	}
	if room.Members() != 1 {
		t.Fatalf("room members = %d, want 1 (only a)", room.Members())
	}
}
