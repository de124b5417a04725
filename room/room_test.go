package room

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/swarmserver/config"
	"github.com/wfunc/swarmserver/logger"
	"github.com/wfunc/swarmserver/models"
	"github.com/wfunc/swarmserver/network"
	"github.com/wfunc/swarmserver/persistence"
	"github.com/wfunc/swarmserver/session"
	"github.com/wfunc/swarmserver/sim"
)

func init() {
	logger.InitNop()
}

// MockConnection is a test double for the network.Connection interface.
// It records every message sent to it.
type MockConnection struct {
	mu   sync.Mutex
	sent []interface{}
	fail bool
}

func (c *MockConnection) SendJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return fmt.Errorf("connection broken")
	}
	c.sent = append(c.sent, v)
	return nil
}

func (c *MockConnection) Close() error         { return nil }
func (c *MockConnection) RemoteAddr() net.Addr { return &net.TCPAddr{} }

func (c *MockConnection) errorCodes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var codes []string
	for _, v := range c.sent {
		if e, ok := v.(*network.ErrorMessage); ok {
			codes = append(codes, e.Code)
		}
	}
	return codes
}

func (c *MockConnection) eventNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for _, v := range c.sent {
		if e, ok := v.(*network.EventMessage); ok {
			names = append(names, e.Name)
		}
	}
	return names
}

func (c *MockConnection) pongCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.sent {
		if _, ok := v.(*network.PongMessage); ok {
			n++
		}
	}
	return n
}

// fakeEngine is a scriptable test double for sim.Engine.
type fakeEngine struct {
	mu      sync.Mutex
	scripts []sim.Result
	actions []sim.Action
}

func (e *fakeEngine) Step(state *models.RoomState, action sim.Action) sim.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions = append(e.actions, action)
	if action.Type == sim.ActionTick {
		state.Tick++
		if len(e.scripts) > 0 {
			res := e.scripts[0]
			e.scripts = e.scripts[1:]
			return res
		}
	}
	return sim.Result{}
}

func (e *fakeEngine) script(results ...sim.Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts = append(e.scripts, results...)
}

// fakeNotifier records registry notifications.
type fakeNotifier struct {
	mu           sync.Mutex
	registered   []string
	unregistered []string
}

func (n *fakeNotifier) NotifyRegister(roomCode string, playerCount int, status string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.registered = append(n.registered, fmt.Sprintf("%s/%d/%s", roomCode, playerCount, status))
	return nil
}

func (n *fakeNotifier) NotifyUnregister(roomCode string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unregistered = append(n.unregistered, roomCode)
	return nil
}

// testConfig uses huge wake intervals so tests drive wakes by hand.
func testConfig() config.GameConfig {
	cfg := config.DefaultGameConfig()
	cfg.CountdownStep = time.Hour
	cfg.TickInterval = time.Hour
	cfg.TeardownGrace = time.Hour
	return cfg
}

type fixture struct {
	manager  *Manager
	db       *persistence.Memory
	engine   *fakeEngine
	notifier *fakeNotifier
}

func newFixture() *fixture {
	db := persistence.NewMemory()
	engine := &fakeEngine{}
	notifier := &fakeNotifier{}
	return &fixture{
		manager:  NewManager(db, engine, testConfig(), notifier, nil),
		db:       db,
		engine:   engine,
		notifier: notifier,
	}
}

func (f *fixture) newSession(id string) (*session.Session, *MockConnection) {
	conn := &MockConnection{}
	cfg := testConfig()
	return session.NewSession(id, conn, cfg.RateLimitMax, cfg.RateLimitWindow), conn
}

// connectAndJoin wires one identified player into the room.
func (f *fixture) connectAndJoin(t *testing.T, code, connID, name string) (*session.Session, *MockConnection) {
	t.Helper()
	sess, conn := f.newSession(connID)
	if err := f.manager.Connect(code, sess, false); err != nil {
		t.Fatalf("connect %s failed: %v", connID, err)
	}
	f.manager.HandleMessage(code, sess, []byte(fmt.Sprintf(`{"type":"join","name":%q}`, name)))
	if sess.PlayerID() == "" {
		t.Fatalf("session %s did not get identified by join", connID)
	}
	return sess, conn
}

// inspect reads room state on the actor goroutine.
func (f *fixture) inspect(code string, fn func(r *Room)) {
	f.manager.do(code, fn)
}

func (f *fixture) status(t *testing.T, code string) string {
	t.Helper()
	var status string
	f.inspect(code, func(r *Room) {
		if r.state != nil {
			status = r.state.Status
		}
	})
	return status
}

func (f *fixture) wake(code string) {
	f.manager.onWake(code)
}

func TestInitOnce(t *testing.T) {
	f := newFixture()
	if err := f.manager.Init("ROOM1"); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	if err := f.manager.Init("ROOM1"); err != ErrAlreadyInitialized {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestConnectUninitializedRoom(t *testing.T) {
	f := newFixture()
	sess, _ := f.newSession("c1")
	if err := f.manager.Connect("NOPE1", sess, false); err != ErrInvalidRoom {
		t.Fatalf("expected ErrInvalidRoom, got %v", err)
	}
}

func TestJoinSlotAssignment(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")

	sessions := make([]*session.Session, 0, 4)
	for i := 1; i <= 4; i++ {
		sess, _ := f.connectAndJoin(t, "ROOM1", fmt.Sprintf("c%d", i), fmt.Sprintf("P%d", i))
		sessions = append(sessions, sess)
	}

	slots := make(map[string]int)
	f.inspect("ROOM1", func(r *Room) {
		for id, p := range r.state.Players {
			slots[id] = p.Slot
		}
	})
	seen := map[int]bool{}
	for _, slot := range slots {
		seen[slot] = true
	}
	for want := 1; want <= 4; want++ {
		if !seen[want] {
			t.Fatalf("slot %d not assigned, got %v", want, slots)
		}
	}

	// Freeing slot 2 must hand it to the next joiner.
	f.manager.Disconnect("ROOM1", sessions[1], "test")
	sess5, _ := f.connectAndJoin(t, "ROOM1", "c5", "P5")
	var got int
	f.inspect("ROOM1", func(r *Room) {
		got = r.state.Players[sess5.PlayerID()].Slot
	})
	if got != 2 {
		t.Fatalf("expected freed slot 2 to be reused, got %d", got)
	}
}

func TestRoomFull(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	for i := 1; i <= 4; i++ {
		f.connectAndJoin(t, "ROOM1", fmt.Sprintf("c%d", i), "P")
	}

	// Fifth connect is rejected outright.
	sess5, _ := f.newSession("c5")
	if err := f.manager.Connect("ROOM1", sess5, false); err != ErrRoomFull {
		t.Fatalf("expected ErrRoomFull on connect, got %v", err)
	}

	var count int
	f.inspect("ROOM1", func(r *Room) { count = r.state.PlayerCount() })
	if count != 4 {
		t.Fatalf("player count exceeded 4: %d", count)
	}
}

func TestJoinRoomFullByMessage(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	for i := 1; i <= 4; i++ {
		f.connectAndJoin(t, "ROOM1", fmt.Sprintf("c%d", i), "P")
	}
	// A fifth unidentified connection could have attached before the room
	// filled; its join message must be rejected.
	sess5, conn5 := f.newSession("c5")
	f.manager.HandleMessage("ROOM1", sess5, []byte(`{"type":"join","name":"P5"}`))
	codes := conn5.errorCodes()
	if len(codes) != 1 || codes[0] != network.ErrCodeRoomFull {
		t.Fatalf("expected room_full error, got %v", codes)
	}
	if sess5.PlayerID() != "" {
		t.Fatal("fifth join must not identify the connection")
	}
}

func TestModeSoloCoop(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")

	s1, _ := f.connectAndJoin(t, "ROOM1", "c1", "A")
	var mode string
	f.inspect("ROOM1", func(r *Room) { mode = r.state.Mode })
	if mode != models.ModeSolo {
		t.Fatalf("one player should be solo, got %s", mode)
	}

	f.connectAndJoin(t, "ROOM1", "c2", "B")
	f.inspect("ROOM1", func(r *Room) { mode = r.state.Mode })
	if mode != models.ModeCoop {
		t.Fatalf("two players should be coop, got %s", mode)
	}

	f.manager.Disconnect("ROOM1", s1, "test")
	f.inspect("ROOM1", func(r *Room) { mode = r.state.Mode })
	if mode != models.ModeSolo {
		t.Fatalf("back to one player should be solo, got %s", mode)
	}
}

func TestNameRules(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")

	s1, _ := f.connectAndJoin(t, "ROOM1", "c1", "VeryLongPlayerName123")
	var name string
	f.inspect("ROOM1", func(r *Room) { name = r.state.Players[s1.PlayerID()].Name })
	if name != "VeryLongPlay" {
		t.Fatalf("expected truncated name VeryLongPlay, got %q", name)
	}

	sess2, _ := f.newSession("c2")
	if err := f.manager.Connect("ROOM1", sess2, false); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	f.manager.HandleMessage("ROOM1", sess2, []byte(`{"type":"join","name":42}`))
	f.inspect("ROOM1", func(r *Room) { name = r.state.Players[sess2.PlayerID()].Name })
	if name != "Player" {
		t.Fatalf("non-text name should default to Player, got %q", name)
	}
}

func TestCountdownStartAndCancel(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	s1, _ := f.connectAndJoin(t, "ROOM1", "c1", "A")
	s2, _ := f.connectAndJoin(t, "ROOM1", "c2", "B")

	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"ready"}`))
	if got := f.status(t, "ROOM1"); got != models.StatusWaiting {
		t.Fatalf("countdown must not start with one ready, status %s", got)
	}

	f.manager.HandleMessage("ROOM1", s2, []byte(`{"type":"ready"}`))
	if got := f.status(t, "ROOM1"); got != models.StatusCountdown {
		t.Fatalf("expected countdown, got %s", got)
	}
	if !f.manager.sched.Pending("ROOM1") {
		t.Fatal("countdown should arm a wake")
	}

	// Ready-count regression cancels back to waiting.
	f.manager.HandleMessage("ROOM1", s2, []byte(`{"type":"unready"}`))
	if got := f.status(t, "ROOM1"); got != models.StatusWaiting {
		t.Fatalf("expected waiting after cancel, got %s", got)
	}
	if f.manager.sched.Pending("ROOM1") {
		t.Fatal("cancelled countdown must cancel the pending wake")
	}
}

func TestCountdownJoinRejected(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	s1, _ := f.connectAndJoin(t, "ROOM1", "c1", "A")
	s2, _ := f.connectAndJoin(t, "ROOM1", "c2", "B")
	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"ready"}`))
	f.manager.HandleMessage("ROOM1", s2, []byte(`{"type":"ready"}`))

	sess3, conn3 := f.newSession("c3")
	if err := f.manager.Connect("ROOM1", sess3, false); err != nil {
		t.Fatalf("connect during countdown should be allowed: %v", err)
	}
	f.manager.HandleMessage("ROOM1", sess3, []byte(`{"type":"join","name":"C"}`))
	codes := conn3.errorCodes()
	if len(codes) != 1 || codes[0] != network.ErrCodeCountdownInProgress {
		t.Fatalf("expected countdown_in_progress, got %v", codes)
	}
}

func TestRoundStartSequence(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	s1, conn1 := f.connectAndJoin(t, "ROOM1", "c1", "A")
	s2, _ := f.connectAndJoin(t, "ROOM1", "c2", "B")
	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"ready"}`))
	f.manager.HandleMessage("ROOM1", s2, []byte(`{"type":"ready"}`))

	// countdown 3 -> 2 -> 1 -> round start
	f.wake("ROOM1")
	f.wake("ROOM1")
	if got := f.status(t, "ROOM1"); got != models.StatusCountdown {
		t.Fatalf("still counting down, got %s", got)
	}
	f.wake("ROOM1")
	if got := f.status(t, "ROOM1"); got != models.StatusStageHold {
		t.Fatalf("expected stage_hold after countdown, got %s", got)
	}

	// Only static obstacles are seeded before the reveal boundary.
	f.inspect("ROOM1", func(r *Room) {
		if n := len(r.state.EntitiesOfKind(models.EntityAlien)); n != 0 {
			t.Errorf("no hostiles may exist in stage_hold, got %d", n)
		}
		if n := len(r.state.EntitiesOfKind(models.EntityObstacle)); n == 0 {
			t.Error("obstacles must be seeded at round start")
		}
		if r.state.Lives != 4 {
			t.Errorf("two players share 4 lives, got %d", r.state.Lives)
		}
	})

	// Engine drives stage_hold -> stage_reveal; formation appears exactly here.
	f.engine.script(sim.Result{Events: []sim.Event{{
		Name: sim.EventPhaseChange,
		Data: map[string]interface{}{"to": models.StatusStageReveal},
	}}})
	f.wake("ROOM1")
	if got := f.status(t, "ROOM1"); got != models.StatusStageReveal {
		t.Fatalf("expected stage_reveal, got %s", got)
	}
	f.inspect("ROOM1", func(r *Room) {
		aliens := r.state.EntitiesOfKind(models.EntityAlien)
		if len(aliens) == 0 {
			t.Error("formation must materialize at the reveal boundary")
		}
		for _, a := range aliens {
			if !a.Entering {
				t.Errorf("alien %s not marked entering", a.ID)
			}
		}
	})

	f.engine.script(sim.Result{Events: []sim.Event{{
		Name: sim.EventPhaseChange,
		Data: map[string]interface{}{"to": models.StatusPlaying},
	}}})
	f.wake("ROOM1")
	if got := f.status(t, "ROOM1"); got != models.StatusPlaying {
		t.Fatalf("expected playing, got %s", got)
	}

	names := conn1.eventNames()
	wantOrder := []string{"countdown", "round_start"}
	idx := 0
	for _, n := range names {
		if idx < len(wantOrder) && n == wantOrder[idx] {
			idx++
		}
	}
	if idx != len(wantOrder) {
		t.Fatalf("missing lifecycle events, saw %v", names)
	}
}

// startRound drives two ready players all the way into playing.
func (f *fixture) startRound(t *testing.T, code string) (*session.Session, *session.Session) {
	t.Helper()
	s1, _ := f.connectAndJoin(t, code, "c1", "A")
	s2, _ := f.connectAndJoin(t, code, "c2", "B")
	f.manager.HandleMessage(code, s1, []byte(`{"type":"ready"}`))
	f.manager.HandleMessage(code, s2, []byte(`{"type":"ready"}`))
	f.wake(code)
	f.wake(code)
	f.wake(code)
	f.engine.script(sim.Result{Events: []sim.Event{{
		Name: sim.EventPhaseChange,
		Data: map[string]interface{}{"to": models.StatusStageReveal},
	}}})
	f.wake(code)
	f.engine.script(sim.Result{Events: []sim.Event{{
		Name: sim.EventPhaseChange,
		Data: map[string]interface{}{"to": models.StatusPlaying},
	}}})
	f.wake(code)
	if got := f.status(t, code); got != models.StatusPlaying {
		t.Fatalf("round failed to start, status %s", got)
	}
	return s1, s2
}

func TestWaveClearPreservesObstacles(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	f.startRound(t, "ROOM1")

	var obstaclesBefore int
	f.inspect("ROOM1", func(r *Room) {
		// sprinkle transient entities the wipe must strip
		r.state.Entities = append(r.state.Entities,
			models.Entity{Kind: models.EntityBullet, ID: "b1", OwnerID: "x"})
		obstaclesBefore = len(r.state.EntitiesOfKind(models.EntityObstacle))
	})

	f.engine.script(sim.Result{Events: []sim.Event{{Name: sim.EventWaveComplete}}})
	f.wake("ROOM1")

	f.inspect("ROOM1", func(r *Room) {
		if r.state.Status != models.StatusStageExit {
			t.Errorf("expected stage_exit after wave clear, got %s", r.state.Status)
		}
		if r.state.Wave != 2 {
			t.Errorf("wave counter should advance to 2, got %d", r.state.Wave)
		}
		if n := len(r.state.EntitiesOfKind(models.EntityBullet)); n != 0 {
			t.Errorf("projectiles must be stripped, %d left", n)
		}
		if n := len(r.state.EntitiesOfKind(models.EntityObstacle)); n != obstaclesBefore {
			t.Errorf("obstacles changed across wipe: %d -> %d", obstaclesBefore, n)
		}
	})
}

func TestDisconnectDuringRound(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	s1, _ := f.startRound(t, "ROOM1")

	// One of two leaving keeps the round running.
	f.manager.Disconnect("ROOM1", s1, "test")
	if got := f.status(t, "ROOM1"); got != models.StatusPlaying {
		t.Fatalf("round must continue for the survivor, got %s", got)
	}

	var remaining int
	f.inspect("ROOM1", func(r *Room) { remaining = r.state.PlayerCount() })
	if remaining != 1 {
		t.Fatalf("expected 1 remaining player, got %d", remaining)
	}
}

func TestLastPlayerDisconnectEndsRound(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	s1, s2 := f.startRound(t, "ROOM1")

	f.manager.Disconnect("ROOM1", s1, "test")
	f.manager.Disconnect("ROOM1", s2, "test")

	if got := f.status(t, "ROOM1"); got != models.StatusGameOver {
		t.Fatalf("expected game_over when room empties mid-round, got %s", got)
	}
	if status, ok := f.db.RoomStatus("ROOM1"); !ok || status != models.StatusGameOver {
		t.Fatalf("game_over must be persisted, got %q %v", status, ok)
	}

	records := f.db.GameRecords()
	if len(records) != 1 || records[0].Result != sim.ResultDefeat {
		t.Fatalf("expected one defeat record, got %+v", records)
	}
}

func TestForfeitEndsRound(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	s1, _ := f.connectAndJoin(t, "ROOM1", "c1", "A")
	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"start_solo"}`))
	if got := f.status(t, "ROOM1"); got != models.StatusStageHold {
		t.Fatalf("start_solo should begin the round, got %s", got)
	}
	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"forfeit"}`))
	if got := f.status(t, "ROOM1"); got != models.StatusGameOver {
		t.Fatalf("forfeit should end the round, got %s", got)
	}
}

func TestStartSoloRejectedMidRoundLeavesStateUntouched(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	s1, _ := f.connectAndJoin(t, "ROOM1", "c1", "A")
	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"start_solo"}`))
	if got := f.status(t, "ROOM1"); got != models.StatusStageHold {
		t.Fatalf("solo start failed, got %s", got)
	}

	f.inspect("ROOM1", func(r *Room) { r.state.Lives = 1 })

	// A second start_solo mid-round is rejected and must change nothing.
	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"start_solo"}`))
	f.inspect("ROOM1", func(r *Room) {
		if r.state.Status != models.StatusStageHold {
			t.Errorf("status changed by rejected start_solo: %s", r.state.Status)
		}
		if r.state.Lives != 1 {
			t.Errorf("rejected start_solo must not refill lives, got %d", r.state.Lives)
		}
	})
}

func TestJoinRecomputesSpawnPositions(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	f.connectAndJoin(t, "ROOM1", "c1", "A")
	f.connectAndJoin(t, "ROOM1", "c2", "B")

	// Every player sits at the spacing for the current count, not the
	// count at their own join time.
	f.inspect("ROOM1", func(r *Room) {
		count := r.state.PlayerCount()
		for _, p := range r.state.Players {
			want := models.SpawnX(p.Slot, count, r.state.Config.Width)
			if p.X != want {
				t.Errorf("slot %d at x=%v, want %v", p.Slot, p.X, want)
			}
		}
	})
}

func TestLateDisconnectAfterTeardown(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	s1, _ := f.connectAndJoin(t, "ROOM1", "c1", "A")
	f.manager.Disconnect("ROOM1", s1, "test")
	f.wake("ROOM1")

	// The read loop notices the close only after teardown and dispatches
	// one more disconnect; the stateless actor it revives must not stay
	// resident.
	f.manager.Disconnect("ROOM1", s1, "closed")

	f.manager.mutex.Lock()
	_, resident := f.manager.rooms["ROOM1"]
	f.manager.mutex.Unlock()
	if resident {
		t.Fatal("stateless room actor left resident after late disconnect")
	}
}

func TestInputOrderingWithinTick(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	s1, s2 := f.startRound(t, "ROOM1")

	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"move","direction":"left"}`))
	f.manager.HandleMessage("ROOM1", s2, []byte(`{"type":"shoot"}`))
	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"input","held":{"left":true,"right":false}}`))
	f.wake("ROOM1")

	// Last four engine calls: move, shoot, input in arrival order, then one tick.
	f.engine.mu.Lock()
	defer f.engine.mu.Unlock()
	n := len(f.engine.actions)
	got := f.engine.actions[n-4:]
	if got[0].Type != sim.ActionMove || got[1].Type != sim.ActionShoot ||
		got[2].Type != sim.ActionInput || got[3].Type != sim.ActionTick {
		t.Fatalf("buffered actions out of order: %+v", got)
	}
}

func TestInvalidPayloadsDroppedSilently(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	s1, conn1 := f.connectAndJoin(t, "ROOM1", "c1", "A")

	// Unknown discriminator: silent no-op.
	before := len(conn1.errorCodes())
	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"teleport"}`))
	if got := len(conn1.errorCodes()); got != before {
		t.Fatalf("unknown kind must be silent, got errors %v", conn1.errorCodes())
	}

	// Malformed input body: silent drop, nothing buffered.
	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"input","held":{"left":true}}`))
	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"move","direction":"up"}`))
	var pending int
	f.inspect("ROOM1", func(r *Room) { pending = len(r.pending) })
	if pending != 0 {
		t.Fatalf("invalid control payloads must not be buffered, got %d", pending)
	}
	if got := len(conn1.errorCodes()); got != before {
		t.Fatalf("invalid control payloads must be silent, got %v", conn1.errorCodes())
	}

	// Unparsable JSON: invalid_message to the sender only.
	f.manager.HandleMessage("ROOM1", s1, []byte(`{not json`))
	codes := conn1.errorCodes()
	if len(codes) != before+1 || codes[len(codes)-1] != network.ErrCodeInvalidMessage {
		t.Fatalf("expected invalid_message, got %v", codes)
	}
}

func TestRateLimiting(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	sess, conn := f.newSession("c1")
	if err := f.manager.Connect("ROOM1", sess, false); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	sess2, conn2 := f.newSession("c2")
	if err := f.manager.Connect("ROOM1", sess2, false); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	ping := []byte(`{"type":"ping"}`)
	for i := 0; i < 60; i++ {
		f.manager.HandleMessage("ROOM1", sess, ping)
	}
	if got := conn.pongCount(); got != 60 {
		t.Fatalf("first 60 messages must pass, got %d pongs", got)
	}

	// 61st is dropped with exactly one notification; later drops are silent.
	f.manager.HandleMessage("ROOM1", sess, ping)
	f.manager.HandleMessage("ROOM1", sess, ping)
	f.manager.HandleMessage("ROOM1", sess, ping)
	if got := conn.pongCount(); got != 60 {
		t.Fatalf("excess messages must be dropped, got %d pongs", got)
	}
	codes := conn.errorCodes()
	limited := 0
	for _, c := range codes {
		if c == network.ErrCodeRateLimited {
			limited++
		}
	}
	if limited != 1 {
		t.Fatalf("expected exactly one rate_limited error, got %d", limited)
	}

	// The second connection's window is unaffected.
	f.manager.HandleMessage("ROOM1", sess2, ping)
	if got := conn2.pongCount(); got != 1 {
		t.Fatalf("second connection must be unaffected, got %d pongs", got)
	}
}

func TestEvictAndReactivate(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	s1, _ := f.connectAndJoin(t, "ROOM1", "c1", "Alice")

	f.manager.Evict("ROOM1")

	// The next call reactivates the actor from the persisted row.
	info, err := f.manager.Info("ROOM1")
	if err != nil {
		t.Fatalf("info after evict failed: %v", err)
	}
	if info.PlayerCount != 1 || info.Status != models.StatusWaiting {
		t.Fatalf("reactivated state wrong: %+v", info)
	}

	// The surviving connection keeps working through its durable identity.
	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"ready"}`))
	var ready int
	f.inspect("ROOM1", func(r *Room) { ready = len(r.state.Ready) })
	if ready != 1 {
		t.Fatalf("identified message after evict must work, ready=%d", ready)
	}
}

func TestTeardownWhenEmpty(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	s1, _ := f.connectAndJoin(t, "ROOM1", "c1", "A")
	f.manager.Disconnect("ROOM1", s1, "test")

	if !f.manager.sched.Pending("ROOM1") {
		t.Fatal("emptying the room must arm the teardown wake")
	}

	// Grace period elapses.
	f.wake("ROOM1")

	if _, err := f.db.LoadRoomState("ROOM1"); err != persistence.ErrRecordNotFound {
		t.Fatalf("room row must be deleted on teardown, got %v", err)
	}
	f.notifier.mu.Lock()
	unregistered := len(f.notifier.unregistered)
	f.notifier.mu.Unlock()
	if unregistered == 0 {
		t.Fatal("teardown must unregister from the registry")
	}

	// The code is reusable afterwards.
	if err := f.manager.Init("ROOM1"); err != nil {
		t.Fatalf("room code must be reusable after teardown: %v", err)
	}
}

func TestBroadcastFailureIsolation(t *testing.T) {
	f := newFixture()
	f.manager.Init("ROOM1")
	s1, conn1 := f.connectAndJoin(t, "ROOM1", "c1", "A")
	_, conn2 := f.connectAndJoin(t, "ROOM1", "c2", "B")

	conn1.mu.Lock()
	conn1.fail = true
	conn1.mu.Unlock()

	f.manager.HandleMessage("ROOM1", s1, []byte(`{"type":"ready"}`))

	found := false
	for _, n := range conn2.eventNames() {
		if n == "player_ready" {
			found = true
		}
	}
	if !found {
		t.Fatal("a failing connection must not block delivery to others")
	}
}
