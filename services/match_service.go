// services/match_service.go
package services

import (
	"github.com/wfunc/swarmserver/models"
	"github.com/wfunc/swarmserver/registry"
)

// MatchService 面向内部查询的匹配服务，封装注册表 actor
type MatchService struct {
	registry *registry.Registry
}

func NewMatchService(reg *registry.Registry) *MatchService {
	return &MatchService{registry: reg}
}

// FindOpenRoom 返回一个可加入的房间码，没有则 ok=false
func (s *MatchService) FindOpenRoom() (string, bool) {
	return s.registry.Find()
}

// RoomInfo 返回注册表里某房间的记录
func (s *MatchService) RoomInfo(roomCode string) (models.RegistryEntry, bool) {
	return s.registry.Info(roomCode)
}
