package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/swarmserver/config"
	"github.com/wfunc/swarmserver/logger"
	"github.com/wfunc/swarmserver/monitor"
	"github.com/wfunc/swarmserver/network"
	"github.com/wfunc/swarmserver/persistence"
	"github.com/wfunc/swarmserver/room"
	"github.com/wfunc/swarmserver/services"
	"github.com/wfunc/swarmserver/session"
)

// GameServer 对外 HTTP 面: 房间初始化/查询、连接升级、发现查询。
// 路由本身不持状态，只把房间码解析到对应 actor 并转发。
type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	rooms          *room.Manager
	sessionManager *session.Manager
	matchService   *services.MatchService
	db             persistence.Database
	monitor        *monitor.Monitor
	cfg            config.GameConfig
	codePattern    *regexp.Regexp
}

func NewGameServer(addr string, rooms *room.Manager, ms *services.MatchService, db persistence.Database, mon *monitor.Monitor, cfg config.GameConfig) *GameServer {
	return &GameServer{
		addr:           addr,
		rooms:          rooms,
		sessionManager: session.NewManager(),
		matchService:   ms,
		db:             db,
		monitor:        mon,
		cfg:            cfg,
		codePattern:    regexp.MustCompile(fmt.Sprintf(`^[A-Z0-9]{%d}$`, cfg.RoomCodeLength)),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
}

func (s *GameServer) Start() error {
	logger.Log.Infof("Game server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// Handler 组装路由
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rooms/{code}/init", s.handleInit)
	mux.HandleFunc("GET /rooms/{code}/info", s.handleInfo)
	mux.HandleFunc("GET /rooms/{code}/ws", s.handleWebSocket)
	mux.HandleFunc("GET /find", s.handleFind)
	mux.HandleFunc("GET /registry/{code}", s.handleRegistryInfo)
	return mux
}

// roomCode 校验路径里的房间码: 固定长度大写字母数字
func (s *GameServer) roomCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := r.PathValue("code")
	if !s.codePattern.MatchString(code) {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return "", false
	}
	return code, true
}

func (s *GameServer) handleInit(w http.ResponseWriter, r *http.Request) {
	code, ok := s.roomCode(w, r)
	if !ok {
		return
	}
	if err := s.rooms.Init(code); err != nil {
		if err == room.ErrAlreadyInitialized {
			http.Error(w, "room already initialized", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"roomCode": code})
}

func (s *GameServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	code, ok := s.roomCode(w, r)
	if !ok {
		return
	}
	info, err := s.rooms.Info(code)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, info)
}

func (s *GameServer) handleFind(w http.ResponseWriter, r *http.Request) {
	code, found := s.matchService.FindOpenRoom()
	if !found {
		writeJSON(w, map[string]interface{}{"roomCode": nil})
		return
	}
	writeJSON(w, map[string]string{"roomCode": code})
}

func (s *GameServer) handleRegistryInfo(w http.ResponseWriter, r *http.Request) {
	code, ok := s.roomCode(w, r)
	if !ok {
		return
	}
	entry, found := s.matchService.RoomInfo(code)
	if !found {
		http.Error(w, "room not registered", http.StatusNotFound)
		return
	}
	writeJSON(w, entry)
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code, ok := s.roomCode(w, r)
	if !ok {
		return
	}
	rejoin := r.URL.Query().Get("rejoin") == "1"

	// 客户端可以带上之前的连接令牌恢复身份绑定
	connID := r.URL.Query().Get("conn")
	if connID == "" {
		connID = uuid.New().String()
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}

	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(connID, wsConn, s.cfg.RateLimitMax, s.cfg.RateLimitWindow)

	// 身份绑在连接令牌上并已持久化，宿主进程重启后依然可恢复
	if att, err := s.db.LoadAttachment(connID); err == nil && att.RoomCode == code {
		sess.Attach(att)
	}

	if err := s.rooms.Connect(code, sess, rejoin); err != nil {
		_ = wsConn.SendJSON(network.NewError(connectErrorCode(err), err.Error()))
		_ = wsConn.Close()
		return
	}

	s.sessionManager.Add(sess)
	s.monitor.IncConnectedPlayers()
	logger.Log.Infof("New connection %s on room %s from %s", sess.ID, code, wsConn.RemoteAddr())

	reason := "closed"
	defer func() {
		s.rooms.Disconnect(code, sess, reason)
		s.sessionManager.Remove(sess.ID)
		s.monitor.DecConnectedPlayers()
		_ = wsConn.Close()
		logger.Log.Infof("Connection %s on room %s gone (%s)", sess.ID, code, reason)
	}()

	for {
		data, err := wsConn.ReadMessage()
		if err != nil {
			// 错误按关闭处理，原因只进日志
			reason = err.Error()
			return
		}
		s.rooms.HandleMessage(code, sess, data)
	}
}

func connectErrorCode(err error) string {
	switch err {
	case room.ErrInvalidRoom:
		return network.ErrCodeInvalidRoom
	case room.ErrGameInProgress:
		return network.ErrCodeGameInProgress
	case room.ErrRoomFull:
		return network.ErrCodeRoomFull
	}
	return "internal_error"
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Errorf("write response: %v", err)
	}
}
