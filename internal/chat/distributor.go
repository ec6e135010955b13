package chat

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/NuvandaPV/instant/internal/idgen"
)

// Distributor is the central fan-out fabric: it stamps envelopes,
// validates inbound frames, dispatches them by type, and owns the
// join/leave/unicast/broadcast operations that keep a Room's delivery
// order total. A Distributor is safe for concurrent use; most of its
// work is delegated to per-room critical sections rather than a single
// global lock.
type Distributor struct {
	group *RoomGroup
	ids   *idgen.Allocator

	historySink HistorySink
	reportSink  ReportSink
}

// NewDistributor builds a Distributor over group, allocating message
// and connection IDs from ids.
func NewDistributor(group *RoomGroup, ids *idgen.Allocator) *Distributor {
	return &Distributor{group: group, ids: ids}
}

// Group exposes the underlying RoomGroup.
func (d *Distributor) Group() *RoomGroup { return d.group }

// SetHistorySink wires an optional best-effort room-history recorder.
// Must be called before serving traffic; unset by default.
func (d *Distributor) SetHistorySink(sink HistorySink) { d.historySink = sink }

// SetReportSink wires an optional best-effort moderation-report sink.
// Must be called before serving traffic; unset by default.
func (d *Distributor) SetReportSink(sink ReportSink) { d.reportSink = sink }

// NextConnectionID allocates a ConnectionID for a newly-upgraded client.
func (d *Distributor) NextConnectionID() uint64 { return d.ids.Next() }

func (d *Distributor) nextMessageID() string {
	return strconv.FormatUint(d.ids.Next(), 10)
}

func uidOf(c *Client) string {
	return strconv.FormatUint(c.ConnectionID, 10)
}

// stamp overwrites the server-assigned fields of env: From, ID and
// Timestamp, regardless of whatever the caller populated.
func (d *Distributor) stamp(env *Envelope, from string) {
	env.From = from
	env.ID = d.nextMessageID()
	env.Timestamp = time.Now().UnixMilli()
}

// Join adds client to the named room, creating it if necessary, and
// broadcasts a "joined" presence event. Joining a room the client is
// already a member of is a no-op: no presence event, same *Room
// returned. name == "" joins the null room (which never emits
// presence, since it is not a broadcastable room).
func (d *Distributor) Join(client *Client, name string) *Room {
	var room *Room
	if name == "" {
		room = d.group.null
	} else {
		d.group.mu.Lock()
		room = d.group.findOrCreateLocked(name)
		d.group.mu.Unlock()
	}

	room.mu.Lock()
	alreadyMember := room.hasLocked(client.ConnectionID)
	if !alreadyMember {
		room.addLocked(client)
	}
	room.mu.Unlock()

	if alreadyMember {
		return room
	}
	client.setRoom(room)

	if !room.IsNull() {
		d.broadcastPresence(room, "joined", client)
	}
	return room
}

// Leave removes client from its current room (if any), emits a "left"
// presence event, and deletes the room from the group if it is now
// empty. Leaving the null room removes the client without any presence
// event; a client with no room is a no-op.
func (d *Distributor) Leave(client *Client) {
	room := client.Room()
	if room == nil {
		return
	}

	room.mu.Lock()
	becameEmpty := room.removeLocked(client.ConnectionID)
	room.mu.Unlock()
	client.setRoom(nil)

	if !room.IsNull() {
		d.broadcastPresence(room, "left", client)
	}

	if becameEmpty && !room.IsNull() {
		d.group.mu.Lock()
		d.group.dropIfEmptyLocked(room)
		d.group.mu.Unlock()
	}
}

// Move atomically (from the caller's perspective) leaves the client's
// current room and joins newName, emitting presence on the old room
// before the new one, per spec tie-break ordering.
func (d *Distributor) Move(client *Client, newName string) *Room {
	d.Leave(client)
	return d.Join(client, newName)
}

type presenceData struct {
	UID  string `json:"uid"`
	Nick string `json:"nick"`
}

func (d *Distributor) broadcastPresence(room *Room, typ string, subject *Client) {
	data, err := json.Marshal(presenceData{UID: uidOf(subject), Nick: subject.Nick()})
	if err != nil {
		return
	}
	_, _ = d.broadcastPlain(room, Envelope{Type: typ, Data: data}, ServerSender)
}

type errorData struct {
	Reason string `json:"reason"`
}

// SendUnicast assigns an id, serializes env once, and enqueues it on
// target only. Returns ErrNoSuchMember if target is not currently a
// member of room.
func (d *Distributor) SendUnicast(room *Room, targetID uint64, env Envelope, from string) (string, error) {
	d.stamp(&env, from)
	payload, err := env.Marshal()
	if err != nil {
		return "", err
	}

	room.mu.Lock()
	target, ok := room.memberLocked(targetID)
	room.mu.Unlock()
	if !ok {
		return "", ErrNoSuchMember
	}

	if !target.Enqueue(payload) {
		d.handleOverflow(target)
	}
	return env.ID, nil
}

// broadcastPlain assigns an id, serializes env exactly once under the
// room's lock, and enqueues the identical byte slice onto every current
// member's queue in that same critical section. Used for presence
// events, which have no per-recipient variation. Broadcasting on the
// null room fails with ErrNoSuchRoom.
func (d *Distributor) broadcastPlain(room *Room, env Envelope, from string) (string, error) {
	if room.IsNull() {
		return "", ErrNoSuchRoom
	}

	var overflowed []*Client
	room.mu.Lock()
	d.stamp(&env, from)
	payload, err := env.Marshal()
	if err != nil {
		room.mu.Unlock()
		return "", err
	}
	room.forEachLocked(func(c *Client) {
		if !c.Enqueue(payload) {
			overflowed = append(overflowed, c)
		}
	})
	room.mu.Unlock()

	for _, c := range overflowed {
		d.handleOverflow(c)
	}
	return env.ID, nil
}

// SendBroadcast assigns an id and serializes data exactly once under the
// room's lock for every recipient except, optionally, the originating
// sender: per the echo-flow scenario in spec.md (S4), the sender's own
// copy additionally carries their own seq, echoed back, while every
// other member's copy omits it -- so sender and non-sender copies are
// two distinct marshalings of the same stamped id/from/timestamp/data,
// both produced inside the single locked critical section that
// establishes this broadcast's position in the room's total order. If
// excludeSelf is true, sender receives no copy at all. Broadcasting on
// the null room fails with ErrNoSuchRoom.
func (d *Distributor) SendBroadcast(room *Room, data []byte, from string, sender *Client, senderSeq *json.Number, excludeSelf bool) (string, error) {
	if room.IsNull() {
		return "", ErrNoSuchRoom
	}
	env := Envelope{Type: "broadcast", Data: data}

	var overflowed []*Client
	room.mu.Lock()
	d.stamp(&env, from)

	commonPayload, err := env.Marshal()
	if err != nil {
		room.mu.Unlock()
		return "", err
	}

	var senderPayload []byte
	if sender != nil && senderSeq != nil {
		withSeq := env
		withSeq.Seq = senderSeq
		senderPayload, err = withSeq.Marshal()
		if err != nil {
			room.mu.Unlock()
			return "", err
		}
	}

	room.forEachLocked(func(c *Client) {
		isSender := sender != nil && c.ConnectionID == sender.ConnectionID
		if isSender && excludeSelf {
			return
		}
		payload := commonPayload
		if isSender && senderPayload != nil {
			payload = senderPayload
		}
		if !c.Enqueue(payload) {
			overflowed = append(overflowed, c)
		}
	})
	room.mu.Unlock()

	if d.historySink != nil {
		go d.historySink.AppendHistory(room.Name, commonPayload)
	}

	for _, c := range overflowed {
		d.handleOverflow(c)
	}
	return env.ID, nil
}

// handleOverflow implements the client-resource error path: a client
// whose send queue overflowed is removed from the room (leave presence
// emitted) and its WebSocket closed; other members are unaffected.
func (d *Distributor) handleOverflow(c *Client) {
	c.SetState(StateClosing)
	d.Leave(c)
	_ = c.WriteControlClose(1011, "internal overload")
	c.Close()
}

// Dispatch decodes and handles a single inbound frame from client,
// performing whichever of ping/unicast/broadcast/who/nick/unknown
// applies, per spec. Protocol errors produce an {type:"error"} reply to
// the originator only; the connection survives.
func (d *Distributor) Dispatch(client *Client, raw []byte) {
	in, err := DecodeInbound(raw)
	if err != nil {
		d.replyError(client, "malformed-envelope", nil)
		return
	}

	switch in.Type {
	case "ping":
		d.reply(client, Envelope{Type: "pong", Seq: in.Seq})
	case "unicast":
		d.dispatchUnicast(client, in)
	case "broadcast":
		d.dispatchBroadcast(client, in)
	case "who":
		d.dispatchWho(client, in)
	case "nick":
		d.dispatchNick(client, in)
	case "report":
		d.dispatchReport(client, in)
	default:
		d.replyError(client, "unknown-type", in.Seq)
	}
}

func (d *Distributor) dispatchUnicast(client *Client, in *Inbound) {
	room := client.Room()
	if room == nil {
		d.replyError(client, "no-such-member", in.Seq)
		return
	}
	targetID, err := strconv.ParseUint(in.To, 10, 64)
	if err != nil {
		d.replyError(client, "no-such-member", in.Seq)
		return
	}
	env := Envelope{Type: "unicast", To: in.To, Data: in.Data}
	if _, err := d.SendUnicast(room, targetID, env, uidOf(client)); err != nil {
		d.replyError(client, "no-such-member", in.Seq)
	}
}

func (d *Distributor) dispatchBroadcast(client *Client, in *Inbound) {
	room := client.Room()
	if room == nil || room.IsNull() {
		d.replyError(client, "no-such-room", in.Seq)
		return
	}
	if _, err := d.SendBroadcast(room, in.Data, uidOf(client), client, in.Seq, in.ExcludeSelf); err != nil {
		d.replyError(client, "no-such-room", in.Seq)
		return
	}
}

func (d *Distributor) dispatchWho(client *Client, in *Inbound) {
	room := client.Room()
	var snapshot []Member
	if room != nil {
		snapshot = room.Snapshot()
	}
	data, _ := json.Marshal(snapshot)
	d.reply(client, Envelope{Type: "who", Seq: in.Seq, Data: data})
}

func (d *Distributor) dispatchNick(client *Client, in *Inbound) {
	var payload struct {
		Nick string `json:"nick"`
	}
	if err := json.Unmarshal(in.Data, &payload); err != nil || !ValidNick(payload.Nick) {
		d.replyError(client, "invalid-nick", in.Seq)
		return
	}
	client.SetNick(payload.Nick)

	room := client.Room()
	if room != nil && !room.IsNull() {
		d.broadcastPresence(room, "nick", client)
	}
}

// dispatchReport files a moderation report against another member, if
// a ReportSink is configured. Every well-formed report is acked to the
// originator, sink or not; a report without a subject_uid gets an
// error reply instead. Filing never touches the broadcast path.
func (d *Distributor) dispatchReport(client *Client, in *Inbound) {
	var payload struct {
		SubjectUID string `json:"subject_uid"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal(in.Data, &payload); err != nil || payload.SubjectUID == "" {
		d.replyError(client, "invalid-report", in.Seq)
		return
	}

	room := client.Room()
	if d.reportSink != nil && room != nil {
		roomName := room.Name
		reporter := uidOf(client)
		go d.reportSink.FileReport(roomName, reporter, payload.SubjectUID, payload.Reason)
	}

	d.reply(client, Envelope{Type: "report", Seq: in.Seq})
}

// reply enqueues env (stamped as from the server) to client only.
func (d *Distributor) reply(client *Client, env Envelope) {
	d.stamp(&env, ServerSender)
	payload, err := env.Marshal()
	if err != nil {
		return
	}
	if !client.Enqueue(payload) {
		d.handleOverflow(client)
	}
}

func (d *Distributor) replyError(client *Client, reason string, seq *json.Number) {
	data, _ := json.Marshal(errorData{Reason: reason})
	d.reply(client, Envelope{Type: "error", Seq: seq, Data: data})
}
